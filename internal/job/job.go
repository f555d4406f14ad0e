// Package job provides the render Job aggregate and the service
// orchestrating the green-screen render pipeline. It includes the Job entity
// with state machine transitions and repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/nevercjunderscore/greenscreenmethod/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to start.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before completing.
	StatusCancelled Status = "CANCELLED"
)

// Stage identifies the pipeline stage a running job is in.
type Stage string

const (
	// StageProbing covers measuring the foreground duration.
	StageProbing Stage = "PROBING"
	// StageBackground covers clip selection, normalization, and concatenation.
	StageBackground Stage = "BUILDING_BACKGROUND"
	// StageCompositing covers the chroma-key overlay encode.
	StageCompositing Stage = "COMPOSITING"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// SelectedClip records one stock clip that went into a job's background.
type SelectedClip struct {
	// Path is the clip file path.
	Path string
	// Duration is the clip duration in seconds.
	Duration float64
}

// Job represents a green-screen render job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the pipeline stage while the job is RUNNING.
	Stage Stage
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// Category is the stock clip category used for the background.
	Category string
	// ForegroundPath is the path to the uploaded green-screen clip.
	ForegroundPath string
	// ForegroundDuration is the probed foreground duration in seconds.
	ForegroundDuration float64
	// Clips are the stock clips selected for the background.
	Clips []SelectedClip
	// BackgroundPath is the path to the assembled background video.
	BackgroundPath string
	// OutputPath is the path to the final composited video.
	OutputPath string
	// KeyColor is the chroma-key color for this job.
	KeyColor string
	// KeySimilarity is the chroma-key similarity threshold.
	KeySimilarity float64
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if PushToS3 was true.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when the ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Clips:     make([]SelectedClip, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the pipeline stage the job is working through.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// SetClips records the stock clips selected for the background.
func (j *Job) SetClips(clips []SelectedClip) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Clips = clips
	j.UpdatedAt = time.Now()
}

// SetForeground records the probed foreground path and duration.
func (j *Job) SetForeground(path string, duration float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ForegroundPath = path
	j.ForegroundDuration = duration
	j.UpdatedAt = time.Now()
}

// SetBackground records the path of the assembled background video.
func (j *Job) SetBackground(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.BackgroundPath = path
	j.UpdatedAt = time.Now()
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output video path and optional S3 URL.
func (j *Job) SetOutput(videoPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = videoPath
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	clips := make([]SelectedClip, len(j.Clips))
	copy(clips, j.Clips)

	return &Job{
		ID:                 j.ID,
		Status:             j.Status,
		Stage:              j.Stage,
		Progress:           j.Progress,
		Error:              j.Error,
		Category:           j.Category,
		ForegroundPath:     j.ForegroundPath,
		ForegroundDuration: j.ForegroundDuration,
		Clips:              clips,
		BackgroundPath:     j.BackgroundPath,
		OutputPath:         j.OutputPath,
		KeyColor:           j.KeyColor,
		KeySimilarity:      j.KeySimilarity,
		PushToS3:           j.PushToS3,
		VideoURL:           j.VideoURL,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
	}
}
