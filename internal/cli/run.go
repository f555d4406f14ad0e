package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nevercjunderscore/greenscreenmethod/internal/background"
	"github.com/nevercjunderscore/greenscreenmethod/internal/clips"
	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
)

func run(cmd *cobra.Command, foreground string) error {
	clipsDir, _ := cmd.Flags().GetString("clips-dir")
	category, _ := cmd.Flags().GetString("category")
	out, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	fps, _ := cmd.Flags().GetFloat64("fps")
	bitrate, _ := cmd.Flags().GetString("bitrate")
	preset, _ := cmd.Flags().GetString("preset")
	crf, _ := cmd.Flags().GetInt("crf")
	keyColor, _ := cmd.Flags().GetString("key-color")
	similarity, _ := cmd.Flags().GetFloat64("similarity")
	minClip, _ := cmd.Flags().GetFloat64("min-clip")

	absForeground, err := filepath.Abs(foreground)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absForeground); err != nil {
		return fmt.Errorf("foreground video: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	// Keep structured logging out of the way of the progress lines.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	prober := media.NewFFprober(getenvDefault("FFPROBE_PATH", "ffprobe"))
	processor := media.NewFFmpegProcessor(getenvDefault("FFMPEG_PATH", "ffmpeg"))
	library := clips.NewLibrary(clipsDir, prober, logger, clips.WithMinClipLength(minClip))

	workDir, err := os.MkdirTemp("", "greenscreen-*")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	builder := background.NewBuilder(library, processor, workDir, logger,
		background.WithMaxConcurrent(workers),
	)

	encOpts := media.EncodeOpts{
		Width:        width,
		Height:       height,
		FrameRate:    fps,
		VideoBitrate: bitrate,
		Preset:       preset,
		CRF:          crf,
	}

	stdout := cmd.OutOrStdout()

	// Step 1: probe the foreground duration.
	fmt.Fprintf(stdout, "Checking duration of %s\n", filepath.Base(absForeground))
	duration, err := prober.Duration(ctx, absForeground)
	if err != nil {
		return fmt.Errorf("probe foreground: %w", err)
	}
	fmt.Fprintf(stdout, "Foreground duration: %.2f seconds\n", duration)

	// Step 2: assemble a background of matching length.
	fmt.Fprintf(stdout, "Generating background from category %q...\n", category)
	bgPath := filepath.Join(workDir, "background_combined.mp4")
	concatBar := newProgressBar(stdout, "Combining background videos")
	result, err := builder.Build(ctx, category, duration, encOpts, bgPath, concatBar.update)
	concatBar.finish()
	if err != nil {
		return fmt.Errorf("build background: %w", err)
	}
	fmt.Fprintf(stdout, "Combined %d background clips (%.2fs)\n",
		len(result.Selection.Clips), result.Selection.TotalDuration)
	if result.Selection.Shortfall {
		fmt.Fprintf(stdout, "Warning: clip pool covered only %.2fs of the %.2fs target\n",
			result.Selection.TotalDuration, duration)
	}

	// Step 3: chroma-key composite, trimmed to the foreground.
	fmt.Fprintf(stdout, "Applying green screen effect into %s...\n", filepath.Base(out))
	compOpts := media.CompositeOpts{
		KeyColor:           keyColor,
		Similarity:         similarity,
		ForegroundDuration: duration,
		Preset:             preset,
		CRF:                crf,
		FrameRate:          fps,
	}
	compositeBar := newProgressBar(stdout, "Applying green screen")
	err = processor.Composite(ctx, absForeground, bgPath, out, compOpts, compositeBar.update)
	compositeBar.finish()
	if err != nil {
		return fmt.Errorf("composite: %w", err)
	}

	fmt.Fprintf(stdout, "Done: %s\n", out)
	return nil
}
