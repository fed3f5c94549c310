package orchestrating

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"LoadMonitor/pkg/graphing"
	"LoadMonitor/pkg/polling"
	"LoadMonitor/pkg/provisioning"
	"LoadMonitor/pkg/sampling"
	"LoadMonitor/pkg/telemetry"
	"LoadMonitor/pkg/uploading"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 10 * time.Millisecond
	testDuration = 50 * time.Millisecond
)

type fakeProbe struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (p *fakeProbe) Read(ctx context.Context) (sampling.Reading, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return sampling.Reading{}, err
	}
	if p.fail.Load() {
		return sampling.Reading{}, fmt.Errorf("%w: cpu: boom", sampling.ErrMetricUnavailable)
	}
	return sampling.Reading{CPUPct: 20, MemPct: 50, DiskPct: 60}, nil
}

type fakeProvisioner struct {
	err   error
	names []string
}

func (p *fakeProvisioner) EnsureRunning(_ context.Context, name string) error {
	p.names = append(p.names, name)
	return p.err
}

type fakeUploader struct {
	err   error
	delay time.Duration
	block bool
	calls int
	path  string
}

func (u *fakeUploader) Upload(ctx context.Context, _, filePath string) error {
	u.calls++
	u.path = filePath
	if u.block {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", uploading.ErrTransferFailure, ctx.Err())
		case <-time.After(5 * time.Second):
			return nil
		}
	}
	time.Sleep(u.delay)
	return u.err
}

type fakeSink struct {
	mu     sync.Mutex
	titles []string
	paths  []string
	err    error
}

func (s *fakeSink) Extension() string { return ".png" }

func (s *fakeSink) Render(rec sampling.PhaseRecording, title, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.paths = append(s.paths, outputPath)
	return s.err
}

type harness struct {
	probe       *fakeProbe
	provisioner *fakeProvisioner
	uploader    *fakeUploader
	sink        graphing.Sink
	check       polling.CheckFunc
	poller      *polling.Poller
	observer    sampling.Observer
	recorder    *telemetry.Recorder
	cfg         Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		probe:       &fakeProbe{},
		provisioner: &fakeProvisioner{},
		uploader:    &fakeUploader{delay: 20 * time.Millisecond},
		sink:        &fakeSink{},
		check:       func(context.Context) bool { return true },
		poller:      polling.NewPoller(polling.WithInterval(20 * time.Millisecond)),
		cfg: Config{
			SessionID:       "test-session",
			ContainerName:   "my_qdrant_container",
			SnapshotFile:    "/tmp/snap.bin",
			UploadURL:       "http://localhost:6333/collections/payload/snapshots/upload",
			MonitorDuration: testDuration,
			ChartsDir:       t.TempDir(),
			ExportFormat:    "none",
		},
	}
}

func (h *harness) build(t *testing.T) *Orchestrator {
	t.Helper()
	opts := []sampling.Option{sampling.WithInterval(testInterval)}
	if h.observer != nil {
		opts = append(opts, sampling.WithObserver(h.observer))
	}
	o, err := New(h.cfg, Deps{
		Engine:      sampling.NewEngine(h.probe, opts...),
		Provisioner: h.provisioner,
		Uploader:    h.uploader,
		Poller:      h.poller,
		Check:       h.check,
		Sink:        h.sink,
		Recorder:    h.recorder,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return o
}

func assertNoOverlap(t *testing.T, s *Session) {
	t.Helper()
	require.NotZero(t, s.Pre.Len())
	require.NotZero(t, s.During.Len())
	require.NotZero(t, s.Post.Len())

	_, preLast := s.Pre.Span()
	duringFirst, duringLast := s.During.Span()
	postFirst, _ := s.Post.Span()
	assert.True(t, preLast.Before(duringFirst), "pre and during overlap")
	assert.True(t, duringLast.Before(postFirst), "during and post overlap")

	assert.False(t, s.Windows[PhasePreMonitor].End.After(s.Windows[PhaseProvision].Start))
	assert.False(t, s.Windows[PhaseConcurrent].End.After(s.Windows[PhasePostMonitor].Start))
}

// Scenario A: a normal run produces three recordings and two charts on disk.
func TestRun_ScenarioA(t *testing.T) {
	h := newHarness(t)
	h.sink = graphing.NewPNGRenderer()
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "test-session", s.ID)
	assert.InDelta(t, 5, s.Pre.Len(), 2)
	assert.InDelta(t, 5, s.Post.Len(), 2)
	assert.GreaterOrEqual(t, s.During.Len(), 1)
	assert.Equal(t, PhaseConcurrent, s.During.Phase)
	assertNoOverlap(t, s)

	assert.Equal(t, []string{"my_qdrant_container"}, h.provisioner.names)
	assert.Equal(t, "/tmp/snap.bin", h.uploader.path)

	assert.FileExists(t, filepath.Join(h.cfg.ChartsDir, "pre_upload_chart.png"))
	assert.FileExists(t, filepath.Join(h.cfg.ChartsDir, "post_upload_chart.png"))
	assert.NoFileExists(t, filepath.Join(h.cfg.ChartsDir, "during_upload_chart.png"))
	assert.Len(t, s.Artifacts, 2)
}

// Scenario B: the readiness check fails twice, and the background sampler
// keeps recording through every poll.
func TestRun_ScenarioB(t *testing.T) {
	h := newHarness(t)
	var checks atomic.Int32
	var seen []int64
	h.check = func(context.Context) bool {
		seen = append(seen, h.probe.calls.Load())
		return checks.Add(1) > 2
	}
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), checks.Load())
	require.Len(t, seen, 3)
	assert.Greater(t, seen[1], seen[0])
	assert.Greater(t, seen[2], seen[1])

	wait := s.Windows[PhaseAwaitReady]
	assert.GreaterOrEqual(t, wait.End.Sub(wait.Start), 40*time.Millisecond)
	assert.GreaterOrEqual(t, s.During.Len(), 4)
	assertNoOverlap(t, s)
}

// Scenario C: a failed transfer is tolerated.
func TestRun_ScenarioC(t *testing.T) {
	h := newHarness(t)
	h.uploader.err = fmt.Errorf("%w: status 500", uploading.ErrTransferFailure)
	var checked atomic.Bool
	h.check = func(context.Context) bool {
		checked.Store(true)
		return true
	}
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, checked.Load())
	assert.ErrorIs(t, s.TransferErr, uploading.ErrTransferFailure)
	assert.NotZero(t, s.Post.Len())
	assert.Len(t, h.sink.(*fakeSink).paths, 2)
}

func TestRun_RenderDuring(t *testing.T) {
	h := newHarness(t)
	h.cfg.RenderDuring = true
	sink := &fakeSink{}
	h.sink = sink
	o := h.build(t)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Pre-Upload System Resource Usage",
		"During-Upload System Resource Usage",
		"Post-Upload System Resource Usage",
	}, sink.titles)
	assert.Equal(t, filepath.Join(h.cfg.ChartsDir, "during_upload_chart.png"), sink.paths[1])
}

func TestRun_CreatesChartsDir(t *testing.T) {
	h := newHarness(t)
	h.cfg.ChartsDir = filepath.Join(t.TempDir(), "nested", "charts")
	h.sink = graphing.NewPNGRenderer()
	o := h.build(t)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.DirExists(t, h.cfg.ChartsDir)
}

func TestRun_ZeroDuration(t *testing.T) {
	h := newHarness(t)
	h.cfg.MonitorDuration = 0
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pre.Len())
	assert.Equal(t, 1, s.Post.Len())
}

func TestRun_ProvisionFailure(t *testing.T) {
	h := newHarness(t)
	h.provisioner.err = fmt.Errorf("%w: docker unavailable", provisioning.ErrProvisionFailure)
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseProvision, pe.Phase)
	assert.ErrorIs(t, err, provisioning.ErrProvisionFailure)
	assert.Contains(t, err.Error(), "provision")

	assert.NotZero(t, s.Pre.Len())
	assert.Zero(t, s.During.Len())
	assert.Zero(t, h.uploader.calls)
	assert.Empty(t, h.sink.(*fakeSink).paths)
}

func TestRun_MetricFailurePre(t *testing.T) {
	h := newHarness(t)
	h.probe.fail.Store(true)
	o := h.build(t)

	_, err := o.Run(context.Background())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhasePreMonitor, pe.Phase)
	assert.ErrorIs(t, err, sampling.ErrMetricUnavailable)
	assert.Empty(t, h.provisioner.names)
}

func TestRun_MetricFailureBackground(t *testing.T) {
	h := newHarness(t)
	h.uploader.block = true
	h.observer = func(phase string, _ sampling.Sample) {
		if phase == PhaseConcurrent {
			h.probe.fail.Store(true)
		}
	}
	o := h.build(t)

	start := time.Now()
	s, err := o.Run(context.Background())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseConcurrent, pe.Phase)
	assert.ErrorIs(t, err, sampling.ErrMetricUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second, "upload was not aborted")

	assert.Equal(t, 1, s.During.Len())
	assert.Zero(t, s.Post.Len())
	assertSamplerStopped(t, h.probe)
}

func TestRun_MetricFailurePost(t *testing.T) {
	h := newHarness(t)
	h.observer = func(phase string, _ sampling.Sample) {
		if phase == PhasePostMonitor {
			h.probe.fail.Store(true)
		}
	}
	o := h.build(t)

	s, err := o.Run(context.Background())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhasePostMonitor, pe.Phase)
	assert.ErrorIs(t, err, sampling.ErrMetricUnavailable)
	assert.Equal(t, 1, s.Post.Len())
	assert.Empty(t, h.sink.(*fakeSink).paths)
}

func TestRun_ReadinessTimeoutJoinsSampler(t *testing.T) {
	h := newHarness(t)
	h.check = func(context.Context) bool { return false }
	h.poller = polling.NewPoller(polling.WithInterval(10*time.Millisecond), polling.WithMaxWait(50*time.Millisecond))
	o := h.build(t)

	s, err := o.Run(context.Background())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseAwaitReady, pe.Phase)
	assert.ErrorIs(t, err, polling.ErrReadinessTimeout)

	assert.NotZero(t, s.During.Len())
	assert.Zero(t, s.Post.Len())
	assertSamplerStopped(t, h.probe)
}

func TestRun_ContextCancelledDuringPoll(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.check = func(context.Context) bool {
		cancel()
		return false
	}
	o := h.build(t)

	s, err := o.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotZero(t, s.During.Len())
	assertSamplerStopped(t, h.probe)
}

func TestRun_RenderFailure(t *testing.T) {
	h := newHarness(t)
	h.sink = &fakeSink{err: errors.New("disk full")}
	o := h.build(t)

	_, err := o.Run(context.Background())
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseRender, pe.Phase)
}

func TestRun_ExportAndTelemetry(t *testing.T) {
	h := newHarness(t)
	h.recorder = telemetry.NewRecorder()
	h.observer = h.recorder.Observe
	h.cfg.ExportFormat = "jsonl"
	h.cfg.MetricsFile = filepath.Join(t.TempDir(), "loadmon.prom")
	o := h.build(t)

	s, err := o.Run(context.Background())
	require.NoError(t, err)

	samples := filepath.Join(h.cfg.ChartsDir, "samples_test-session.jsonl")
	assert.FileExists(t, samples)
	assert.Contains(t, s.Artifacts, samples)

	data, err := os.ReadFile(h.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `loadmon_samples_total{phase="concurrent"}`)
	assert.Contains(t, string(data), `loadmon_phase_duration_seconds{phase="render"}`)
}

func TestRun_ExportFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.cfg.ExportFormat = "xlsx"
	o := h.build(t)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	h := newHarness(t)
	h.cfg.SessionID = ""
	o := h.build(t)
	assert.NotEmpty(t, o.cfg.SessionID)
}

func TestPhaseError(t *testing.T) {
	err := &PhaseError{Phase: PhaseUpload, Err: uploading.ErrTransferFailure}
	assert.Equal(t, "upload phase failed: transfer failed", err.Error())
	assert.ErrorIs(t, err, uploading.ErrTransferFailure)
}

// assertSamplerStopped fails if the probe is still being read after Run returned.
func assertSamplerStopped(t *testing.T, p *fakeProbe) {
	t.Helper()
	before := p.calls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, before, p.calls.Load(), "background sampler still running")
}
