package job

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nevercjunderscore/greenscreenmethod/internal/background"
	"github.com/nevercjunderscore/greenscreenmethod/internal/clips"
	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
)

// mockProber is a mock implementation of media.Prober.
type mockProber struct {
	mock.Mock
}

func (m *mockProber) Duration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockProber) Probe(ctx context.Context, path string) (*media.Info, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.Info), args.Error(1)
}

// mockBuilder is a mock implementation of BackgroundBuilder.
type mockBuilder struct {
	mock.Mock
}

func (m *mockBuilder) Build(ctx context.Context, category string, targetDuration float64, encOpts media.EncodeOpts, output string, onProgress media.ProgressFunc) (*background.Result, error) {
	args := m.Called(ctx, category, targetDuration, encOpts, output, onProgress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*background.Result), args.Error(1)
}

// mockProcessor is a mock implementation of media.Processor.
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Transcode(ctx context.Context, src, dst string, opts media.EncodeOpts) error {
	args := m.Called(ctx, src, dst, opts)
	return args.Error(0)
}

func (m *mockProcessor) Concat(ctx context.Context, inputs []string, output string, opts media.EncodeOpts, totalDuration float64, onProgress media.ProgressFunc) error {
	args := m.Called(ctx, inputs, output, opts, totalDuration, onProgress)
	return args.Error(0)
}

func (m *mockProcessor) Composite(ctx context.Context, foreground, background, output string, opts media.CompositeOpts, onProgress media.ProgressFunc) error {
	args := m.Called(ctx, foreground, background, output, opts, onProgress)
	return args.Error(0)
}

// mockStorage is a mock implementation of storage.Storage.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) CleanupTemp(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func (m *mockStorage) UploadToS3(ctx context.Context, key string, data io.Reader) (string, error) {
	args := m.Called(ctx, key, data)
	return args.String(0), args.Error(1)
}

func testDefaults() RenderDefaults {
	return RenderDefaults{
		Encode:        media.DefaultEncodeOpts(),
		KeyColor:      "0x00FF00",
		KeySimilarity: 0.3,
		Category:      "Clips",
	}
}

func testInput() RenderInput {
	return RenderInput{
		ForegroundBase64: base64.StdEncoding.EncodeToString([]byte("fake video data")),
	}
}

func testSelection() clips.Selection {
	return clips.Selection{
		Clips: []clips.Clip{
			{Path: "/clips/a.mp4", Duration: 5},
			{Path: "/clips/b.mp4", Duration: 6},
		},
		TotalDuration: 11,
	}
}

type serviceMocks struct {
	prober    *mockProber
	builder   *mockBuilder
	processor *mockProcessor
	store     *mockStorage
}

func newTestService(t *testing.T) (*RenderService, *serviceMocks) {
	t.Helper()
	m := &serviceMocks{
		prober:    new(mockProber),
		builder:   new(mockBuilder),
		processor: new(mockProcessor),
		store:     new(mockStorage),
	}
	svc := NewRenderService(
		NewMemoryRepository(),
		m.prober,
		m.builder,
		m.processor,
		m.store,
		testDefaults(),
		t.TempDir(),
		nil,
	)
	return svc, m
}

func TestRenderService_CreateJob(t *testing.T) {
	svc, _ := newTestService(t)

	j, err := svc.CreateJob(context.Background(), RenderInput{
		ForegroundBase64: testInput().ForegroundBase64,
		Category:         "Gameplay",
		KeyColor:         "0x00B140",
		KeySimilarity:    0.25,
		PushToS3:         true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusInQueue, j.GetStatus())
	assert.Equal(t, "Gameplay", j.Category)
	assert.Equal(t, "0x00B140", j.KeyColor)
	assert.Equal(t, 0.25, j.KeySimilarity)
	assert.True(t, j.PushToS3)

	saved, err := svc.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, saved.ID)
}

func TestRenderService_CreateJob_AppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	j, err := svc.CreateJob(context.Background(), testInput())

	require.NoError(t, err)
	assert.Equal(t, "Clips", j.Category)
	assert.Equal(t, "0x00FF00", j.KeyColor)
	assert.Equal(t, 0.3, j.KeySimilarity)
	assert.False(t, j.PushToS3)
}

func TestRenderService_ProcessExistingJob(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 12.5, VideoCodec: "h264", FrameRate: 29.97, Width: 1080, Height: 1920}, nil)
	m.builder.On("Build", mock.Anything, "Clips", 12.5, mock.Anything, mock.Anything, mock.Anything).
		Return(&background.Result{Selection: testSelection()}, nil)
	m.processor.On("Composite", mock.Anything, fgPath, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	j, err := svc.ProcessExistingJob(ctx, created.ID, testInput())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.GetStatus())
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, 12.5, j.ForegroundDuration)
	assert.Len(t, j.Clips, 2)
	assert.NotEmpty(t, j.OutputPath)
	assert.Empty(t, j.VideoURL)
	m.store.AssertNotCalled(t, "UploadToS3", mock.Anything, mock.Anything, mock.Anything)

	// The composite opts carry the job's key settings, the probed duration,
	// and the foreground's real frame rate.
	compOpts := m.processor.Calls[0].Arguments.Get(4).(media.CompositeOpts)
	assert.Equal(t, "0x00FF00", compOpts.KeyColor)
	assert.Equal(t, 0.3, compOpts.Similarity)
	assert.Equal(t, 12.5, compOpts.ForegroundDuration)
	assert.Equal(t, 29.97, compOpts.FrameRate)
}

func TestRenderService_ProcessExistingJob_PushToS3(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 10.0, VideoCodec: "h264", FrameRate: 30}, nil)
	m.builder.On("Build", mock.Anything, "Clips", 10.0, mock.Anything, mock.Anything, mock.Anything).
		Return(&background.Result{Selection: testSelection()}, nil)
	m.processor.On("Composite", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)
	m.store.On("LoadTemp", mock.Anything, mock.Anything).Return(io.NopCloser(strings.NewReader("final video")), nil)
	m.store.On("UploadToS3", mock.Anything, mock.Anything, mock.Anything).
		Return("https://bucket.s3.us-east-1.amazonaws.com/video.mp4", nil)

	input := testInput()
	input.PushToS3 = true
	created, err := svc.CreateJob(ctx, input)
	require.NoError(t, err)

	j, err := svc.ProcessExistingJob(ctx, created.ID, input)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.GetStatus())
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/video.mp4", j.VideoURL)
	m.store.AssertCalled(t, "UploadToS3", mock.Anything, created.ID+".mp4", mock.Anything)
}

func TestRenderService_ProcessExistingJob_CategoryFallback(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 8.0, VideoCodec: "h264", FrameRate: 30}, nil)
	m.builder.On("Build", mock.Anything, "Missing", 8.0, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, clips.ErrCategoryNotFound)
	m.builder.On("Build", mock.Anything, "Clips", 8.0, mock.Anything, mock.Anything, mock.Anything).
		Return(&background.Result{Selection: testSelection()}, nil)
	m.processor.On("Composite", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	input := testInput()
	input.Category = "Missing"
	created, err := svc.CreateJob(ctx, input)
	require.NoError(t, err)

	j, err := svc.ProcessExistingJob(ctx, created.ID, input)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.GetStatus())
	assert.Equal(t, "Clips", j.Category)
	m.builder.AssertNumberOfCalls(t, "Build", 2)
}

func TestRenderService_ProcessExistingJob_InvalidBase64(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID, RenderInput{ForegroundBase64: "not base64!!!"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode foreground base64")

	saved, getErr := svc.GetJob(ctx, created.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, saved.GetStatus())
	assert.NotEmpty(t, saved.Error)
	m.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	m.store.AssertNotCalled(t, "CleanupTemp", mock.Anything, mock.Anything)
}

func TestRenderService_ProcessExistingJob_ProbeFailure(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).Return(nil, errors.New("moov atom not found"))
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID, testInput())

	require.Error(t, err)
	saved, getErr := svc.GetJob(ctx, created.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, saved.GetStatus())
	m.builder.AssertNotCalled(t, "Build",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRenderService_ProcessExistingJob_ZeroDuration(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 0, VideoCodec: "h264"}, nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID, testInput())

	assert.ErrorIs(t, err, media.ErrInvalidDuration)
}

func TestRenderService_ProcessExistingJob_NoVideoStream(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	// An audio-only upload probes fine but has no video stream to key.
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 9.0, HasAudio: true, AudioCodec: "aac"}, nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID, testInput())

	assert.ErrorIs(t, err, media.ErrNoVideoStream)
	saved, getErr := svc.GetJob(ctx, created.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, saved.GetStatus())
	m.builder.AssertNotCalled(t, "Build",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRenderService_ProcessExistingJob_CompositeFailure(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 9.0, VideoCodec: "h264", FrameRate: 30}, nil)
	m.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&background.Result{Selection: testSelection()}, nil)
	compositeErr := errors.New("filter graph failed")
	m.processor.On("Composite", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(compositeErr)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID, testInput())

	assert.ErrorIs(t, err, compositeErr)
	saved, getErr := svc.GetJob(ctx, created.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, saved.GetStatus())
	assert.Contains(t, saved.Error, "composite")
}

func TestRenderService_ProcessExistingJob_CleansTempArtifacts(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 10.0, VideoCodec: "h264", FrameRate: 30}, nil)
	m.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&background.Result{Selection: testSelection()}, nil)
	m.processor.On("Composite", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// The sweep covers the decoded foreground and the background
	// intermediate, never the final output the download endpoint serves.
	m.store.On("CleanupTemp", mock.Anything, mock.MatchedBy(func(paths []string) bool {
		return len(paths) == 2 &&
			paths[0] == fgPath &&
			strings.HasSuffix(paths[1], "_background.mp4")
	})).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	j, err := svc.ProcessExistingJob(ctx, created.ID, testInput())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.GetStatus())
	m.store.AssertNumberOfCalls(t, "CleanupTemp", 1)
	m.store.AssertExpectations(t)
}

// progressRecorder wraps a Repository and records the progress value of
// every save, in order.
type progressRecorder struct {
	Repository
	mu       sync.Mutex
	progress []int
}

func (r *progressRecorder) Save(ctx context.Context, j *Job) error {
	r.mu.Lock()
	r.progress = append(r.progress, j.Progress)
	r.mu.Unlock()
	return r.Repository.Save(ctx, j)
}

func TestRenderService_BackgroundProgressCappedAtStageCeiling(t *testing.T) {
	repo := &progressRecorder{Repository: NewMemoryRepository()}
	m := &serviceMocks{
		prober:    new(mockProber),
		builder:   new(mockBuilder),
		processor: new(mockProcessor),
		store:     new(mockStorage),
	}
	svc := NewRenderService(repo, m.prober, m.builder, m.processor, m.store, testDefaults(), t.TempDir(), nil)
	ctx := context.Background()

	fgPath := filepath.Join(t.TempDir(), "fg.mp4")
	m.store.On("SaveTemp", mock.Anything, mock.Anything, mock.Anything).Return(fgPath, nil)
	m.prober.On("Probe", mock.Anything, fgPath).
		Return(&media.Info{Duration: 10.0, VideoCodec: "h264", FrameRate: 30}, nil)
	// The selection usually overshoots the target duration, so ffmpeg
	// reports more frames than the estimate during concatenation.
	m.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			onProgress := args.Get(5).(media.ProgressFunc)
			for frame := 0; frame <= 330; frame += 30 {
				onProgress(media.Progress{Frame: frame, TotalFrames: 300})
			}
		}).
		Return(&background.Result{Selection: testSelection()}, nil)
	m.processor.On("Composite", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	created, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	j, err := svc.ProcessExistingJob(ctx, created.ID, testInput())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.GetStatus())

	prev := 0
	for _, p := range repo.progress {
		if p > 55 && p < 100 {
			t.Errorf("background-stage progress %d exceeds stage ceiling 55", p)
		}
		if p < prev {
			t.Errorf("progress went backwards: %d after %d (history %v)", p, prev, repo.progress)
		}
		prev = p
	}
}

func TestRenderService_ProcessExistingJob_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ProcessExistingJob(context.Background(), "render-missing", testInput())

	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRenderService_ListJobs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, testInput())
	require.NoError(t, err)
	_, err = svc.CreateJob(ctx, testInput())
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
