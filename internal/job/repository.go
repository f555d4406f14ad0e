package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no render job exists for an ID.
var ErrJobNotFound = errors.New("render job not found")

// Repository persists render jobs. It is the port shared by the HTTP layer
// and the render service; the in-memory implementation backs a single
// process, and a durable one can be swapped in behind the same interface.
type Repository interface {
	// Save stores a render job, overwriting any existing job with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns the render job for an ID, or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns every stored render job.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a render job, returning ErrJobNotFound if it does not
	// exist.
	Delete(ctx context.Context, id string) error
}
