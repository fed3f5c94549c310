// Package orchestrating sequences a monitored snapshot load: sample the
// idle host, make sure the database runs, upload the snapshot while a
// background sampler records the load, wait for the data to become
// queryable, sample again and render the three recordings.
package orchestrating

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"LoadMonitor/pkg/exporting"
	"LoadMonitor/pkg/graphing"
	"LoadMonitor/pkg/polling"
	"LoadMonitor/pkg/provisioning"
	"LoadMonitor/pkg/sampling"
	"LoadMonitor/pkg/telemetry"
	"LoadMonitor/pkg/uploading"
	"LoadMonitor/pkg/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase names. The three monitoring phases double as recording names.
const (
	PhasePreMonitor  = "pre_monitor"
	PhaseProvision   = "provision"
	PhaseConcurrent  = "concurrent"
	PhaseUpload      = "upload"
	PhaseAwaitReady  = "await_ready"
	PhasePostMonitor = "post_monitor"
	PhaseRender      = "render"
	PhaseExport      = "export"
)

const (
	preChartName    = "pre_upload_chart"
	duringChartName = "during_upload_chart"
	postChartName   = "post_upload_chart"
)

// Config holds the per-run settings of an Orchestrator.
type Config struct {
	SessionID       string
	ContainerName   string
	SnapshotFile    string
	UploadURL       string
	MonitorDuration time.Duration
	SettleDelay     time.Duration

	ChartsDir    string
	RenderDuring bool
	// ExportFormat names an exporting format. Empty or "none" disables export.
	ExportFormat string
	MetricsFile  string
}

// Deps are the collaborators driven by the Orchestrator. Recorder is optional.
type Deps struct {
	Engine      *sampling.Engine
	Provisioner provisioning.Provisioner
	Uploader    uploading.Uploader
	Poller      *polling.Poller
	Check       polling.CheckFunc
	Sink        graphing.Sink
	Recorder    *telemetry.Recorder
	Logger      zerolog.Logger
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("orchestrator: sampling engine is required")
	case deps.Provisioner == nil:
		return nil, errors.New("orchestrator: provisioner is required")
	case deps.Uploader == nil:
		return nil, errors.New("orchestrator: uploader is required")
	case deps.Poller == nil || deps.Check == nil:
		return nil, errors.New("orchestrator: poller and readiness check are required")
	case deps.Sink == nil:
		return nil, errors.New("orchestrator: chart sink is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.ChartsDir == "" {
		cfg.ChartsDir = utils.DefaultChartsDir
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With().Str("component", "orchestrator").Str("session", cfg.SessionID).Logger(),
	}, nil
}

// Run executes every phase in order. On a fatal error the session holds
// whatever was recorded up to that point and the error is a *PhaseError.
func (o *Orchestrator) Run(ctx context.Context) (*Session, error) {
	s := newSession(o.cfg.SessionID)
	o.log.Info().
		Str("snapshot", o.cfg.SnapshotFile).
		Dur("monitor", o.cfg.MonitorDuration).
		Msg("Monitoring session started")

	err := o.phase(s, PhasePreMonitor, func() error {
		rec, err := o.deps.Engine.RunFixedDuration(ctx, PhasePreMonitor, o.cfg.MonitorDuration)
		s.Pre = rec
		return err
	})
	if err != nil {
		return s, err
	}

	err = o.phase(s, PhaseProvision, func() error {
		if err := o.deps.Provisioner.EnsureRunning(ctx, o.cfg.ContainerName); err != nil {
			return err
		}
		o.log.Debug().Dur("delay", o.cfg.SettleDelay).Msg("Waiting for container to settle")
		return sleep(ctx, o.cfg.SettleDelay)
	})
	if err != nil {
		return s, err
	}

	if err := o.runConcurrent(ctx, s); err != nil {
		return s, err
	}

	err = o.phase(s, PhasePostMonitor, func() error {
		rec, err := o.deps.Engine.RunFixedDuration(ctx, PhasePostMonitor, o.cfg.MonitorDuration)
		s.Post = rec
		return err
	})
	if err != nil {
		return s, err
	}

	if err := o.phase(s, PhaseRender, func() error { return o.render(s) }); err != nil {
		return s, err
	}

	o.export(s)

	o.log.Info().
		Int("pre", s.Pre.Len()).
		Int("during", s.During.Len()).
		Int("post", s.Post.Len()).
		Dur("elapsed", time.Since(s.StartedAt)).
		Msg("Monitoring session complete")
	return s, nil
}

type samplerResult struct {
	rec sampling.PhaseRecording
	err error
}

// runConcurrent uploads and waits for readiness while a background sampler
// records. The sampler is always stopped and joined before returning.
func (o *Orchestrator) runConcurrent(ctx context.Context, s *Session) error {
	signal := sampling.NewSignal()
	signal.Clear()

	fgCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	started := make(chan struct{})
	done := make(chan samplerResult, 1)
	windowStart := time.Now()

	go func() {
		close(started)
		rec, err := o.deps.Engine.RunUntilCancelled(ctx, PhaseConcurrent, signal)
		if err != nil {
			cancel(err)
		}
		done <- samplerResult{rec: rec, err: err}
	}()
	<-started

	join := func() samplerResult {
		signal.Set()
		res := <-done
		s.During = res.rec
		s.markWindow(PhaseConcurrent, windowStart, time.Now())
		o.deps.Recorder.PhaseDone(PhaseConcurrent, time.Since(windowStart), res.err)
		return res
	}
	// abort joins the sampler. A sampler failure takes precedence over fgErr.
	abort := func(phase string, fgErr error) error {
		res := join()
		if res.err != nil {
			o.log.Error().Err(res.err).Msg("Background sampler failed")
			return &PhaseError{Phase: PhaseConcurrent, Err: res.err}
		}
		return &PhaseError{Phase: phase, Err: fgErr}
	}

	o.log.Info().Str("endpoint", o.cfg.UploadURL).Msg("Uploading snapshot")
	upStart := time.Now()
	upErr := o.deps.Uploader.Upload(fgCtx, o.cfg.UploadURL, o.cfg.SnapshotFile)
	s.markWindow(PhaseUpload, upStart, time.Now())
	o.deps.Recorder.PhaseDone(PhaseUpload, time.Since(upStart), upErr)

	if fgCtx.Err() != nil {
		return abort(PhaseUpload, context.Cause(fgCtx))
	}
	if upErr != nil {
		s.TransferErr = upErr
		o.log.Warn().Err(upErr).Msg("Snapshot upload failed, continuing to readiness wait")
	} else {
		o.log.Info().Dur("took", time.Since(upStart)).Msg("Snapshot uploaded")
	}

	readyStart := time.Now()
	readyErr := o.deps.Poller.PollUntilReady(fgCtx, o.deps.Check)
	s.markWindow(PhaseAwaitReady, readyStart, time.Now())
	o.deps.Recorder.PhaseDone(PhaseAwaitReady, time.Since(readyStart), readyErr)
	if readyErr != nil {
		if fgCtx.Err() != nil && context.Cause(fgCtx) != nil {
			readyErr = context.Cause(fgCtx)
		}
		return abort(PhaseAwaitReady, readyErr)
	}

	res := join()
	if res.err != nil {
		return &PhaseError{Phase: PhaseConcurrent, Err: res.err}
	}
	o.log.Info().Int("samples", res.rec.Len()).Msg("Background sampler joined")
	return nil
}

type chart struct {
	rec   sampling.PhaseRecording
	title string
	name  string
}

func (o *Orchestrator) render(s *Session) error {
	if err := os.MkdirAll(o.cfg.ChartsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create charts directory: %w", err)
	}

	charts := []chart{{s.Pre, "Pre-Upload System Resource Usage", preChartName}}
	if o.cfg.RenderDuring {
		charts = append(charts, chart{s.During, "During-Upload System Resource Usage", duringChartName})
	}
	charts = append(charts, chart{s.Post, "Post-Upload System Resource Usage", postChartName})

	for _, c := range charts {
		path := filepath.Join(o.cfg.ChartsDir, c.name+o.deps.Sink.Extension())
		if err := o.deps.Sink.Render(c.rec, c.title, path); err != nil {
			return fmt.Errorf("failed to render %s: %w", c.name, err)
		}
		s.Artifacts = append(s.Artifacts, path)
		o.log.Info().Str("path", path).Int("samples", c.rec.Len()).Msg("Chart written")
	}
	return nil
}

// export writes the sample file and telemetry textfile. Failures are logged only.
func (o *Orchestrator) export(s *Session) {
	start := time.Now()
	var errs []error

	if f := o.cfg.ExportFormat; f != "" && f != utils.ExportNone {
		records := exporting.Records(s.ID, s.Pre, s.During, s.Post)
		path, err := exporting.SaveRecords(o.cfg.ChartsDir, "samples_"+s.ID, f, records)
		if err != nil {
			errs = append(errs, err)
			o.log.Warn().Err(err).Str("format", f).Msg("Sample export failed")
		} else {
			s.Artifacts = append(s.Artifacts, path)
			o.log.Info().Str("path", path).Int("records", len(records)).Msg("Samples exported")
		}
	}

	s.markWindow(PhaseExport, start, time.Now())
	o.deps.Recorder.PhaseDone(PhaseExport, time.Since(start), errors.Join(errs...))

	if o.cfg.MetricsFile != "" && o.deps.Recorder != nil {
		if err := o.deps.Recorder.WriteTextfile(o.cfg.MetricsFile); err != nil {
			o.log.Warn().Err(err).Msg("Metrics textfile not written")
			return
		}
		s.Artifacts = append(s.Artifacts, o.cfg.MetricsFile)
	}
}

// phase runs fn as one named phase, recording its window and wrapping a
// failure in a PhaseError.
func (o *Orchestrator) phase(s *Session, name string, fn func() error) error {
	o.log.Debug().Str("phase", name).Msg("Phase started")
	start := time.Now()
	err := fn()
	end := time.Now()
	s.markWindow(name, start, end)
	o.deps.Recorder.PhaseDone(name, end.Sub(start), err)

	if err != nil {
		o.log.Error().Err(err).Str("phase", name).Msg("Phase failed")
		return &PhaseError{Phase: name, Err: err}
	}
	o.log.Debug().Str("phase", name).Dur("took", end.Sub(start)).Msg("Phase finished")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
