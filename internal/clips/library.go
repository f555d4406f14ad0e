// Package clips provides the stock clip library: listing category
// directories, shuffling candidates, and selecting clips until a target
// duration is met.
package clips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
)

// Static errors for clip selection.
var (
	// ErrCategoryNotFound is returned when the requested category directory
	// does not exist under the library root.
	ErrCategoryNotFound = errors.New("clip category not found")
	// ErrNoClips is returned when no usable clips exist in a category.
	ErrNoClips = errors.New("no usable clips in category")
)

// Clip is a stock clip selected for the background.
type Clip struct {
	// Path is the absolute path to the clip file.
	Path string
	// Duration is the clip duration in seconds.
	Duration float64
}

// Selection is the result of picking clips for a target duration.
type Selection struct {
	// Clips are the selected clips, in playback order.
	Clips []Clip
	// TotalDuration is the combined duration of the selected clips.
	TotalDuration float64
	// Shortfall is true when the pool was exhausted before reaching the
	// target duration; callers log a warning and proceed with what was found.
	Shortfall bool
}

// Paths returns the file paths of the selected clips in order.
func (s Selection) Paths() []string {
	paths := make([]string, len(s.Clips))
	for i, c := range s.Clips {
		paths[i] = c.Path
	}
	return paths
}

// Library selects stock clips from category subdirectories of a root
// directory.
type Library struct {
	root      string
	minLength float64
	prober    media.Prober
	logger    *slog.Logger
	rng       *rand.Rand
}

// Option configures a Library.
type Option func(*Library)

// WithMinClipLength sets the minimum duration a clip must have to be
// eligible for selection. Defaults to 2 seconds.
func WithMinClipLength(seconds float64) Option {
	return func(l *Library) {
		if seconds > 0 {
			l.minLength = seconds
		}
	}
}

// WithRand sets the random source used to shuffle candidates.
// Useful for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(l *Library) {
		l.rng = rng
	}
}

// NewLibrary creates a Library rooted at the given directory.
func NewLibrary(root string, prober media.Prober, logger *slog.Logger, opts ...Option) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Library{
		root:      root,
		minLength: 2.0,
		prober:    prober,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 - shuffle order is not security sensitive
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ResolveCategory returns the directory for a category name.
// Returns ErrCategoryNotFound if the directory does not exist.
func (l *Library) ResolveCategory(category string) (string, error) {
	dir := filepath.Join(l.root, category)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	return dir, nil
}

// List returns the video files in a category directory, sorted by name.
func (l *Library) List(category string) ([]string, error) {
	dir, err := l.ResolveCategory(category)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read category directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".mp4" || ext == ".m4v" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Select shuffles the clips in a category and accumulates them until the
// target duration is met or the pool runs out. Clips shorter than the
// minimum length are skipped, as are clips that fail probing; neither
// aborts the selection.
func (l *Library) Select(ctx context.Context, category string, targetDuration float64) (Selection, error) {
	files, err := l.List(category)
	if err != nil {
		return Selection{}, err
	}
	if len(files) == 0 {
		return Selection{}, fmt.Errorf("%w: %s", ErrNoClips, category)
	}

	l.rng.Shuffle(len(files), func(i, j int) {
		files[i], files[j] = files[j], files[i]
	})

	var sel Selection
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Selection{}, fmt.Errorf("clip selection cancelled: %w", err)
		}

		duration, err := l.prober.Duration(ctx, path)
		if err != nil {
			l.logger.Warn("failed to probe clip, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if duration < l.minLength {
			continue
		}

		sel.Clips = append(sel.Clips, Clip{Path: path, Duration: duration})
		sel.TotalDuration += duration
		if sel.TotalDuration >= targetDuration {
			return sel, nil
		}
	}

	if len(sel.Clips) == 0 {
		return Selection{}, fmt.Errorf("%w: %s", ErrNoClips, category)
	}

	sel.Shortfall = true
	return sel, nil
}
