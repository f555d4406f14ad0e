// Package background assembles a background video of a target duration from
// a pool of stock clips: select, normalize in parallel, then concatenate.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/nevercjunderscore/greenscreenmethod/internal/clips"
	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
)

// Result describes a finished background build.
type Result struct {
	// Output is the path to the assembled background video.
	Output string
	// Selection is the set of clips that went into the background.
	Selection clips.Selection
}

// Builder assembles background videos.
type Builder struct {
	library       *clips.Library
	processor     media.Processor
	tempDir       string
	maxConcurrent int
	logger        *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxConcurrent bounds the number of clips normalized in parallel.
// Defaults to 4.
func WithMaxConcurrent(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxConcurrent = n
		}
	}
}

// NewBuilder creates a Builder. Normalized intermediate clips are written to
// tempDir and removed when the build finishes.
func NewBuilder(library *clips.Library, processor media.Processor, tempDir string, logger *slog.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		library:       library,
		processor:     processor,
		tempDir:       tempDir,
		maxConcurrent: 4,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build selects clips from the category to cover targetDuration, normalizes
// them in parallel, and concatenates them into output. Concatenation
// progress is reported through onProgress.
func (b *Builder) Build(ctx context.Context, category string, targetDuration float64, encOpts media.EncodeOpts, output string, onProgress media.ProgressFunc) (*Result, error) {
	sel, err := b.library.Select(ctx, category, targetDuration)
	if err != nil {
		return nil, fmt.Errorf("select clips: %w", err)
	}
	if sel.Shortfall {
		b.logger.Warn("clip pool exhausted below target duration",
			slog.String("category", category),
			slog.Float64("selected_sec", sel.TotalDuration),
			slog.Float64("target_sec", targetDuration),
		)
	}

	b.logger.Info("normalizing selected clips",
		slog.String("category", category),
		slog.Int("clips", len(sel.Clips)),
		slog.Float64("total_sec", sel.TotalDuration),
		slog.Int("max_concurrent", b.maxConcurrent),
	)

	normalized, err := b.transcodeAll(ctx, sel.Paths(), encOpts)
	if len(normalized) > 0 {
		defer b.cleanup(normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("normalize clips: %w", err)
	}

	b.logger.Info("concatenating background clips",
		slog.Int("clips", len(normalized)),
		slog.String("output", output),
	)

	if err := b.processor.Concat(ctx, normalized, output, encOpts, targetDuration, onProgress); err != nil {
		return nil, fmt.Errorf("concatenate clips: %w", err)
	}

	return &Result{Output: output, Selection: sel}, nil
}

// transcodeAll normalizes the given clips in parallel with bounded
// concurrency. The first failure cancels the remaining work. The returned
// slice preserves input order and always lists the paths that were created,
// even on error, so callers can clean them up.
func (b *Builder) transcodeAll(ctx context.Context, inputs []string, encOpts media.EncodeOpts) ([]string, error) {
	outputs := make([]string, len(inputs))
	for i := range inputs {
		outputs[i] = filepath.Join(b.tempDir, fmt.Sprintf("temp_clip_%d.mp4", i))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)

	for i, input := range inputs {
		g.Go(func() error {
			if err := b.processor.Transcode(gctx, input, outputs[i], encOpts); err != nil {
				b.logger.Error("clip normalization failed",
					slog.String("input", filepath.Base(input)),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("transcode %s: %w", filepath.Base(input), err)
			}
			b.logger.Debug("clip normalized",
				slog.String("input", filepath.Base(input)),
				slog.String("output", filepath.Base(outputs[i])),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outputs, err
	}
	return outputs, nil
}

// cleanup removes intermediate files, tolerating ones that were never
// created.
func (b *Builder) cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove intermediate clip",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}
