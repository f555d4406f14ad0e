// Package bootstrap provides dependency initialization for the render API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/nevercjunderscore/greenscreenmethod/internal/background"
	"github.com/nevercjunderscore/greenscreenmethod/internal/clips"
	"github.com/nevercjunderscore/greenscreenmethod/internal/config"
	"github.com/nevercjunderscore/greenscreenmethod/internal/job"
	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
	"github.com/nevercjunderscore/greenscreenmethod/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RenderService *job.RenderService
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, workDir, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize external toolchain wrappers
	prober := media.NewFFprober(cfg.FFprobePath)
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath)

	// Initialize clip library and background builder
	library := clips.NewLibrary(cfg.ClipsDir, prober, logger,
		clips.WithMinClipLength(cfg.MinClipSec),
	)
	builder := background.NewBuilder(library, processor, workDir, logger,
		background.WithMaxConcurrent(cfg.MaxConcurrentTranscodes),
	)

	// Initialize job repository
	repo := job.NewMemoryRepository()

	defaults := job.RenderDefaults{
		Encode: media.EncodeOpts{
			Width:        cfg.FrameWidth,
			Height:       cfg.FrameHeight,
			FrameRate:    cfg.FrameRate,
			VideoBitrate: cfg.VideoBitrate,
			Preset:       cfg.Preset,
			CRF:          cfg.CRF,
		},
		KeyColor:      cfg.KeyColor,
		KeySimilarity: cfg.KeySimilarity,
		Category:      cfg.DefaultCategory,
	}

	svc := job.NewRenderService(repo, prober, builder, processor, store, defaults, workDir, logger)

	return &Dependencies{
		RenderService: svc,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration
// and returns the working directory for intermediate files.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, s3Store.TempDir(), nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, localStore.TempDir(), nil
}
