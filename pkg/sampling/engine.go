package sampling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultInterval = time.Second

// Observer is called with every sample appended to a recording.
type Observer func(phase string, s Sample)

// Engine produces phase recordings from a Probe.
type Engine struct {
	probe    Probe
	interval time.Duration
	observer Observer
	logger   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the minimum time between the starts of two samples.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "sampler").Logger() }
}

func NewEngine(probe Probe, opts ...Option) *Engine {
	e := &Engine{
		probe:    probe,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Interval() time.Duration { return e.interval }

// SampleOnce takes a single reading. ElapsedSeconds is left at zero.
func (e *Engine) SampleOnce(ctx context.Context) (Sample, error) {
	return e.sample(ctx, time.Now())
}

// RunFixedDuration samples roughly once per interval until d has elapsed.
// At least one sample is always taken, so d <= 0 yields exactly one.
// On failure the samples gathered so far are returned with the error.
func (e *Engine) RunFixedDuration(ctx context.Context, phase string, d time.Duration) (PhaseRecording, error) {
	rec := PhaseRecording{Phase: phase}
	start := time.Now()

	e.logger.Debug().Str("phase", phase).Dur("duration", d).Msg("Fixed duration sampling started")
	for {
		iterStart := time.Now()
		s, err := e.sample(ctx, start)
		if err != nil {
			return rec, err
		}
		e.append(&rec, s)

		if time.Since(start) >= d {
			break
		}
		if err := e.pace(ctx, iterStart); err != nil {
			return rec, err
		}
		if time.Since(start) >= d {
			break
		}
	}
	e.logger.Debug().Str("phase", phase).Int("samples", rec.Len()).Msg("Fixed duration sampling finished")
	return rec, nil
}

// RunUntilCancelled samples until signal is observed set. The signal is
// checked after each sample, so the recording always holds at least one.
func (e *Engine) RunUntilCancelled(ctx context.Context, phase string, signal *Signal) (PhaseRecording, error) {
	rec := PhaseRecording{Phase: phase}
	start := time.Now()

	e.logger.Debug().Str("phase", phase).Msg("Continuous sampling started")
	for {
		iterStart := time.Now()
		s, err := e.sample(ctx, start)
		if err != nil {
			return rec, err
		}
		e.append(&rec, s)

		if signal.IsSet() {
			break
		}
		if err := e.pace(ctx, iterStart); err != nil {
			return rec, err
		}
	}
	e.logger.Debug().Str("phase", phase).Int("samples", rec.Len()).Msg("Continuous sampling stopped")
	return rec, nil
}

func (e *Engine) sample(ctx context.Context, phaseStart time.Time) (Sample, error) {
	r, err := e.probe.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Sample{}, ctx.Err()
		}
		return Sample{}, err
	}
	now := time.Now()
	return Sample{
		ElapsedSeconds: now.Sub(phaseStart).Seconds(),
		CPUPct:         r.CPUPct,
		MemPct:         r.MemPct,
		DiskPct:        r.DiskPct,
		Timestamp:      now,
	}, nil
}

func (e *Engine) append(rec *PhaseRecording, s Sample) {
	rec.Samples = append(rec.Samples, s)
	if e.observer != nil {
		e.observer(rec.Phase, s)
	}
	e.logger.Trace().
		Str("phase", rec.Phase).
		Float64("elapsed", s.ElapsedSeconds).
		Float64("cpu", s.CPUPct).
		Float64("mem", s.MemPct).
		Float64("disk", s.DiskPct).
		Msg("Sample")
}

// pace waits out whatever is left of the current interval. Probes with a
// measurement window as long as the interval never wait here.
func (e *Engine) pace(ctx context.Context, iterStart time.Time) error {
	remaining := e.interval - time.Since(iterStart)
	if remaining <= 0 {
		return nil
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
