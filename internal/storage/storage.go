// Package storage handles the files a render touches: decoded foreground
// uploads and intermediate artifacts on local disk, and optional delivery of
// the finished video to S3.
package storage

import (
	"context"
	"io"
)

// Storage is the file-handling port of the render pipeline. LocalStorage
// covers the temp-file operations; S3Storage layers final-video delivery on
// top of it.
type Storage interface {
	// SaveTemp writes data (typically a decoded foreground upload) to a temp
	// file named after the hint and returns its path.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a previously written file, usually the finished render
	// before upload. The caller closes the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes intermediate render artifacts. Missing files are
	// not an error; cleanup continues past individual failures.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 delivers a finished render to S3 under the given key and
	// returns its public URL. Returns ErrS3NotConfigured when no S3 backend
	// is set up.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
