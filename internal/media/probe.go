package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media inspection.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a probed file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
)

// Info contains metadata about a media file.
type Info struct {
	// Duration is the container duration in seconds.
	Duration float64
	// Width and Height are the dimensions of the first video stream.
	Width  int
	Height int
	// FrameRate is the average frame rate of the first video stream.
	FrameRate float64
	// VideoCodec is the codec name of the first video stream.
	VideoCodec string
	// HasAudio reports whether the file contains an audio stream.
	HasAudio bool
	// AudioCodec is the codec name of the first audio stream, if any.
	AudioCodec string
	// Bitrate is the overall bitrate in bits per second.
	Bitrate int64
}

// Compile-time check that FFprober implements Prober.
var _ Prober = (*FFprober)(nil)

// FFprober implements Prober using the ffprobe CLI.
type FFprober struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprober creates a new FFprober.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprober(ffprobePath string) *FFprober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprober{ffprobePath: ffprobePath}
}

// Duration returns the duration in seconds of a media file.
func (p *FFprober) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(stdout.String()), err)
	}

	return duration, nil
}

// probeResult mirrors the JSON emitted by ffprobe -show_format -show_streams.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe returns full stream metadata for a media file.
func (p *FFprober) Probe(ctx context.Context, path string) (*Info, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrFFprobeExecution, err)
	}

	var probe probeResult
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &Info{}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = dur
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	return info, nil
}

// parseFrameRate converts ffprobe's rational frame rate (e.g. "30000/1001")
// to a float. Returns 0 for malformed or zero-denominator values.
func parseFrameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		if v, err := strconv.ParseFloat(r, 64); err == nil {
			return v
		}
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
