package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrNoInputs is returned when no video paths are provided for joining.
	ErrNoInputs = errors.New("no input videos provided")
	// ErrInvalidDuration is returned when a duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrInvalidDimensions is returned when frame dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

// Transcode normalizes a single clip to a common resolution, frame rate,
// codec, pixel format, and bitrate so it can later be concatenated.
func (p *FFmpegProcessor) Transcode(ctx context.Context, src, dst string, opts EncodeOpts) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, opts.Width, opts.Height)
	}

	args := []string{
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-vf", fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height),
		"-r", formatFrameRate(opts.FrameRate),
		"-b:v", opts.VideoBitrate,
		"-pix_fmt", "yuv420p",
		"-preset", opts.Preset,
		dst,
	}

	return p.runFFmpeg(ctx, args)
}

// Concat joins videos with the concat demuxer, re-encoding to a uniform
// stream. totalDuration is the expected output length, used only to size the
// progress estimate.
func (p *FFmpegProcessor) Concat(ctx context.Context, inputs []string, output string, opts EncodeOpts, totalDuration float64, onProgress ProgressFunc) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	listFile, err := writeConcatList(inputs)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-r", formatFrameRate(opts.FrameRate),
		"-b:v", opts.VideoBitrate,
		"-avoid_negative_ts", "make_zero",
		output,
	}

	return p.runFFmpegProgress(ctx, args, totalFrames(totalDuration, opts.FrameRate), onProgress)
}

// Composite applies the chromakey filter to the foreground, trims the
// background to the foreground's length, and overlays the two. The
// foreground's audio is copied through and the output is capped to the
// foreground duration.
func (p *FFmpegProcessor) Composite(ctx context.Context, foreground, background, output string, opts CompositeOpts, onProgress ProgressFunc) error {
	if opts.ForegroundDuration <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidDuration, opts.ForegroundDuration)
	}

	filter := fmt.Sprintf(
		"[0:v]chromakey=%s:%s[fg];[1:v]trim=end=%s,setpts=PTS-STARTPTS[bg];[bg][fg]overlay[out]",
		opts.KeyColor,
		strconv.FormatFloat(opts.Similarity, 'f', -1, 64),
		strconv.FormatFloat(opts.ForegroundDuration, 'f', -1, 64),
	)

	args := []string{
		"-y",
		"-i", foreground,
		"-i", background,
		"-filter_complex", filter,
		"-map", "[out]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-t", strconv.FormatFloat(opts.ForegroundDuration, 'f', -1, 64),
		output,
	}

	return p.runFFmpegProgress(ctx, args, totalFrames(opts.ForegroundDuration, opts.FrameRate), onProgress)
}

// writeConcatList creates a temporary file containing the list of video files
// in the format required by ffmpeg's concat demuxer.
func writeConcatList(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "greenscreen-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range inputs {
		// Convert to absolute path for safety
		absPath, err := filepath.Abs(path)
		if err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// runFFmpegProgress executes ffmpeg while tailing its stderr for frame
// counters, delivering progress snapshots through onProgress.
func (p *FFmpegProcessor) runFFmpegProgress(ctx context.Context, args []string, total int, onProgress ProgressFunc) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// Drain stderr before Wait so the pipe is fully consumed.
	stderrOut := scanProgress(stderr, total, onProgress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderrOut,
			Err:    err,
		}
	}

	return nil
}

// formatFrameRate renders a frame rate for the -r flag without a trailing
// fractional part for integral rates.
func formatFrameRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
