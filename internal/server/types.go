// Package server provides the HTTP server for the green-screen render API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateRenderRequest is the HTTP request body for creating a new render job.
type CreateRenderRequest struct {
	// ForegroundBase64 is the base64-encoded green-screen foreground clip.
	ForegroundBase64 string `json:"foreground_base64" validate:"required,base64"`
	// Category is the stock clip category for the background. Unknown
	// categories fall back to the configured default.
	Category string `json:"category"`
	// KeyColor optionally overrides the chroma-key color, e.g. "0x00FF00".
	KeyColor string `json:"key_color" validate:"omitempty,startswith=0x,len=8"`
	// KeySimilarity optionally overrides the chroma-key similarity (0-1].
	KeySimilarity float64 `json:"key_similarity" validate:"omitempty,gt=0,lte=1"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateRenderResponse is the HTTP response after creating a render job.
type CreateRenderResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// RenderResponse is the HTTP response for getting render job details.
type RenderResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Stage is the pipeline stage while the job is running.
	Stage string `json:"stage,omitempty"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Category is the stock clip category used for the background.
	Category string `json:"category"`
	// ForegroundDurationSec is the probed foreground duration.
	ForegroundDurationSec float64 `json:"foreground_duration_sec,omitempty"`
	// ClipCount is the number of stock clips in the background.
	ClipCount int `json:"clip_count,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// VideoBase64 is the base64-encoded video content (if push_to_s3=false and completed).
	VideoBase64 string `json:"video_base64,omitempty"`
	// VideoURL is the S3 URL of the output video (if push_to_s3=true and completed).
	VideoURL string `json:"video_url,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
