package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nevercjunderscore/greenscreenmethod/internal/background"
	"github.com/nevercjunderscore/greenscreenmethod/internal/clips"
	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
	"github.com/nevercjunderscore/greenscreenmethod/internal/storage"
)

// Progress weighting per stage. Probing is effectively free; the background
// build and the composite encode split the rest.
const (
	progressAfterProbe      = 5
	progressAfterBackground = 55
)

// RenderInput contains the input parameters for a render job.
type RenderInput struct {
	// ForegroundBase64 is the base64-encoded green-screen clip.
	ForegroundBase64 string
	// Category is the stock clip category for the background. If the
	// category does not exist, the service falls back to the default.
	Category string
	// KeyColor overrides the configured chroma-key color when non-empty.
	KeyColor string
	// KeySimilarity overrides the configured similarity when positive.
	KeySimilarity float64
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool
}

// RenderDefaults holds the configured defaults applied to each job.
type RenderDefaults struct {
	// Encode are the normalization/encode options for the background build.
	Encode media.EncodeOpts
	// KeyColor is the default chroma-key color.
	KeyColor string
	// KeySimilarity is the default chroma-key similarity.
	KeySimilarity float64
	// Category is the fallback stock clip category.
	Category string
}

// BackgroundBuilder assembles a background video for a target duration.
type BackgroundBuilder interface {
	Build(ctx context.Context, category string, targetDuration float64, encOpts media.EncodeOpts, output string, onProgress media.ProgressFunc) (*background.Result, error)
}

// RenderService orchestrates the green-screen render workflow: probe the
// foreground, assemble a matching background, composite the two, and
// optionally deliver the result to S3.
type RenderService struct {
	repo      Repository
	prober    media.Prober
	builder   BackgroundBuilder
	processor media.Processor
	store     storage.Storage
	defaults  RenderDefaults
	workDir   string
	logger    *slog.Logger
}

// NewRenderService creates a new RenderService. Intermediate and final files
// are written under workDir.
func NewRenderService(
	repo Repository,
	prober media.Prober,
	builder BackgroundBuilder,
	processor media.Processor,
	store storage.Storage,
	defaults RenderDefaults,
	workDir string,
	logger *slog.Logger,
) *RenderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderService{
		repo:      repo,
		prober:    prober,
		builder:   builder,
		processor: processor,
		store:     store,
		defaults:  defaults,
		workDir:   workDir,
		logger:    logger,
	}
}

// CreateJob creates a new job and persists it to the repository.
// The job is created in IN_QUEUE status, ready for processing.
func (s *RenderService) CreateJob(ctx context.Context, input RenderInput) (*Job, error) {
	j := New()
	j.Category = input.Category
	if j.Category == "" {
		j.Category = s.defaults.Category
	}
	j.KeyColor = input.KeyColor
	if j.KeyColor == "" {
		j.KeyColor = s.defaults.KeyColor
	}
	j.KeySimilarity = input.KeySimilarity
	if j.KeySimilarity <= 0 {
		j.KeySimilarity = s.defaults.KeySimilarity
	}
	j.PushToS3 = input.PushToS3

	s.logger.Info("creating render job",
		slog.String("job_id", j.ID),
		slog.String("category", j.Category),
		slog.Bool("push_to_s3", j.PushToS3),
	)

	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return j, nil
}

// GetJob retrieves a job by ID.
func (s *RenderService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs.
func (s *RenderService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ProcessExistingJob runs the render pipeline for a previously created job.
// It is intended to run in a background goroutine; all failures are recorded
// on the job before being returned.
func (s *RenderService) ProcessExistingJob(ctx context.Context, jobID string, input RenderInput) (*Job, error) {
	j, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := j.Start(); err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	if err := s.process(ctx, j, input); err != nil {
		if failErr := j.Fail(err.Error()); failErr != nil {
			s.logger.Error("failed to mark job failed",
				slog.String("job_id", j.ID),
				slog.String("error", failErr.Error()),
			)
		}
		if saveErr := s.repo.Save(context.WithoutCancel(ctx), j); saveErr != nil {
			s.logger.Error("failed to persist failed job",
				slog.String("job_id", j.ID),
				slog.String("error", saveErr.Error()),
			)
		}
		return j, err
	}

	if err := j.Complete(); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	s.logger.Info("render job completed",
		slog.String("job_id", j.ID),
		slog.String("output", j.OutputPath),
		slog.String("video_url", j.VideoURL),
	)
	return j, nil
}

// process runs the pipeline stages for a RUNNING job, updating the job's
// stage and progress as it goes. Intermediate artifacts (the decoded
// foreground and the assembled background) are removed when processing
// finishes, whether or not it succeeded.
func (s *RenderService) process(ctx context.Context, j *Job, input RenderInput) error {
	var scratch []string
	defer func() {
		if len(scratch) == 0 {
			return
		}
		if err := s.store.CleanupTemp(context.WithoutCancel(ctx), scratch); err != nil {
			s.logger.Warn("failed to clean up temp artifacts",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Stage 1: save and probe the foreground.
	j.SetStage(StageProbing)
	_ = s.repo.Save(ctx, j)

	fgPath, err := s.saveForeground(ctx, j.ID, input.ForegroundBase64)
	if err != nil {
		return fmt.Errorf("save foreground: %w", err)
	}
	scratch = append(scratch, fgPath)

	info, err := s.prober.Probe(ctx, fgPath)
	if err != nil {
		return fmt.Errorf("probe foreground: %w", err)
	}
	if info.VideoCodec == "" {
		return fmt.Errorf("%w: foreground", media.ErrNoVideoStream)
	}
	duration := info.Duration
	if duration <= 0 {
		return fmt.Errorf("%w: foreground reports %.2fs", media.ErrInvalidDuration, duration)
	}

	j.SetForeground(fgPath, duration)
	j.UpdateProgress(progressAfterProbe)
	_ = s.repo.Save(ctx, j)

	s.logger.Info("foreground probed",
		slog.String("job_id", j.ID),
		slog.Float64("duration_sec", duration),
		slog.String("video_codec", info.VideoCodec),
		slog.Float64("fps", info.FrameRate),
	)

	// Stage 2: assemble the background.
	j.SetStage(StageBackground)
	_ = s.repo.Save(ctx, j)

	bgPath := filepath.Join(s.workDir, j.ID+"_background.mp4")
	scratch = append(scratch, bgPath)

	result, err := s.buildBackground(ctx, j, duration, bgPath)
	if err != nil {
		return fmt.Errorf("build background: %w", err)
	}

	selected := make([]SelectedClip, len(result.Selection.Clips))
	for i, c := range result.Selection.Clips {
		selected[i] = SelectedClip{Path: c.Path, Duration: c.Duration}
	}
	j.SetClips(selected)
	j.SetBackground(bgPath)
	j.UpdateProgress(progressAfterBackground)
	_ = s.repo.Save(ctx, j)

	// Stage 3: composite foreground over background.
	j.SetStage(StageCompositing)
	_ = s.repo.Save(ctx, j)

	// The foreground's real frame rate gives a tighter frame estimate for
	// progress than the configured encode default.
	fps := info.FrameRate
	if fps <= 0 {
		fps = s.defaults.Encode.FrameRate
	}

	outPath := filepath.Join(s.workDir, j.ID+"_final.mp4")
	compOpts := media.CompositeOpts{
		KeyColor:           j.KeyColor,
		Similarity:         j.KeySimilarity,
		ForegroundDuration: duration,
		Preset:             s.defaults.Encode.Preset,
		CRF:                s.defaults.Encode.CRF,
		FrameRate:          fps,
	}
	onProgress := s.progressUpdater(ctx, j, progressAfterBackground, 100)
	if err := s.processor.Composite(ctx, fgPath, bgPath, outPath, compOpts, onProgress); err != nil {
		return fmt.Errorf("composite: %w", err)
	}

	// Optional S3 delivery.
	videoURL := ""
	if j.PushToS3 {
		videoURL, err = s.uploadOutput(ctx, j.ID, outPath)
		if err != nil {
			return fmt.Errorf("upload output: %w", err)
		}
	}

	j.SetOutput(outPath, videoURL)
	j.UpdateProgress(100)
	return nil
}

// buildBackground runs the background builder, falling back to the default
// category when the requested one does not exist.
func (s *RenderService) buildBackground(ctx context.Context, j *Job, targetDuration float64, output string) (*background.Result, error) {
	onProgress := s.progressUpdater(ctx, j, progressAfterProbe, progressAfterBackground)

	result, err := s.builder.Build(ctx, j.Category, targetDuration, s.defaults.Encode, output, onProgress)
	if err == nil || !errors.Is(err, clips.ErrCategoryNotFound) || j.Category == s.defaults.Category {
		return result, err
	}

	s.logger.Warn("category not found, falling back to default",
		slog.String("job_id", j.ID),
		slog.String("category", j.Category),
		slog.String("default", s.defaults.Category),
	)
	j.Category = s.defaults.Category
	_ = s.repo.Save(ctx, j)

	return s.builder.Build(ctx, j.Category, targetDuration, s.defaults.Encode, output, onProgress)
}

// progressUpdater maps an ffmpeg stage's 0-100% onto the job's [from, to]
// progress window, persisting only when the integer percentage moves.
// The frame totals behind Percent are estimates, so the scaled value is
// capped at the stage ceiling to keep job progress monotonic.
func (s *RenderService) progressUpdater(ctx context.Context, j *Job, from, to int) media.ProgressFunc {
	last := -1
	return func(p media.Progress) {
		scaled := from + int(p.Percent()/100*float64(to-from))
		if scaled > to {
			scaled = to
		}
		if scaled == last {
			return
		}
		last = scaled
		j.UpdateProgress(scaled)
		_ = s.repo.Save(ctx, j)
	}
}

// saveForeground decodes the uploaded foreground and writes it to temp
// storage.
func (s *RenderService) saveForeground(ctx context.Context, jobID, fgBase64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(fgBase64)
	if err != nil {
		return "", fmt.Errorf("decode foreground base64: %w", err)
	}
	path, err := s.store.SaveTemp(ctx, jobID+"_foreground", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return path, nil
}

// uploadOutput pushes the final video to S3 and returns its URL.
func (s *RenderService) uploadOutput(ctx context.Context, jobID, path string) (string, error) {
	f, err := s.store.LoadTemp(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return s.store.UploadToS3(ctx, jobID+".mp4", f)
}
