// Package media provides video probing and processing capabilities.
// All heavy lifting (decoding, encoding, filtering, muxing) is delegated to
// the ffmpeg/ffprobe toolchain; this package builds the invocations and
// parses their output.
package media

import "context"

// EncodeOpts holds the normalization parameters applied to every clip so the
// concat demuxer can join them without stream mismatches.
type EncodeOpts struct {
	// Width and Height are the output frame dimensions.
	Width  int
	Height int
	// FrameRate is the output frame rate.
	FrameRate float64
	// VideoBitrate is the target video bitrate, e.g. "6M".
	VideoBitrate string
	// Preset is the libx264 speed preset, e.g. "veryfast".
	Preset string
	// CRF is the libx264 constant rate factor.
	CRF int
}

// DefaultEncodeOpts returns the encode options for a vertical short-form video.
func DefaultEncodeOpts() EncodeOpts {
	return EncodeOpts{
		Width:        1080,
		Height:       1920,
		FrameRate:    30,
		VideoBitrate: "6M",
		Preset:       "veryfast",
		CRF:          23,
	}
}

// CompositeOpts holds the chroma-key parameters for overlaying a green-screen
// foreground on a background video.
type CompositeOpts struct {
	// KeyColor is the color keyed out of the foreground, e.g. "0x00FF00".
	KeyColor string
	// Similarity is the chromakey similarity threshold in (0, 1].
	Similarity float64
	// ForegroundDuration is the foreground duration in seconds. The background
	// is trimmed and the output capped to this length.
	ForegroundDuration float64
	// Preset is the libx264 speed preset.
	Preset string
	// CRF is the libx264 constant rate factor.
	CRF int
	// FrameRate is used to estimate total frames for progress reporting.
	FrameRate float64
}

// Processor defines the interface for video processing operations.
// Implementations should use ffmpeg or a similar tool.
type Processor interface {
	// Transcode normalizes a single clip to the given resolution, frame rate,
	// codec, and bitrate.
	Transcode(ctx context.Context, src, dst string, opts EncodeOpts) error

	// Concat joins the given videos into a single output file using the
	// concat demuxer, re-encoding to the given options. totalDuration is the
	// expected output duration in seconds, used for progress estimation.
	Concat(ctx context.Context, inputs []string, output string, opts EncodeOpts, totalDuration float64, onProgress ProgressFunc) error

	// Composite overlays the chroma-keyed foreground on the background,
	// trimming the output to the foreground duration and keeping the
	// foreground's audio track.
	Composite(ctx context.Context, foreground, background, output string, opts CompositeOpts, onProgress ProgressFunc) error
}

// Prober defines the interface for media inspection.
type Prober interface {
	// Duration returns the duration of a media file in seconds.
	Duration(ctx context.Context, path string) (float64, error)

	// Probe returns full stream metadata for a media file.
	Probe(ctx context.Context, path string) (*Info, error)
}
