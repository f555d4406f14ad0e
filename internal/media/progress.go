package media

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
)

// Progress is a snapshot of an in-flight ffmpeg encode.
type Progress struct {
	// Frame is the number of frames encoded so far.
	Frame int
	// TotalFrames is the estimated total frame count (0 if unknown).
	TotalFrames int
}

// Percent returns the completion percentage, or 0 if the total is unknown.
func (p Progress) Percent() float64 {
	if p.TotalFrames <= 0 {
		return 0
	}
	return float64(p.Frame) / float64(p.TotalFrames) * 100
}

// ProgressFunc receives progress updates while an ffmpeg invocation runs.
// It is called from the goroutine draining ffmpeg's stderr.
type ProgressFunc func(Progress)

// frameRe matches the frame counter in ffmpeg's periodic stats lines,
// e.g. "frame=  431 fps=120 q=28.0 size=...".
var frameRe = regexp.MustCompile(`frame=\s*(\d+)`)

// scanProgress reads ffmpeg's diagnostic stream line by line and reports the
// current frame through fn. ffmpeg rewrites its stats line with carriage
// returns, so both \r and \n terminate a line. The full stream is returned so
// callers can include it in error messages.
func scanProgress(r io.Reader, totalFrames int, fn ProgressFunc) string {
	var all bytes.Buffer

	scanner := bufio.NewScanner(io.TeeReader(r, &all))
	scanner.Split(scanCRLines)

	for scanner.Scan() {
		if fn == nil {
			continue
		}
		m := frameRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		frame, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		fn(Progress{Frame: frame, TotalFrames: totalFrames})
	}

	return all.String()
}

// scanCRLines is a bufio.SplitFunc that treats both \r and \n as line
// terminators.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// totalFrames estimates the frame count of an encode from its duration and
// frame rate.
func totalFrames(durationSec, frameRate float64) int {
	if durationSec <= 0 || frameRate <= 0 {
		return 0
	}
	return int(durationSec * frameRate)
}
