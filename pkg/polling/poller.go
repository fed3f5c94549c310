// Package polling waits for a dependent service to become ready.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const DefaultInterval = 30 * time.Second

// ErrReadinessTimeout is only produced when a maximum wait is configured.
var ErrReadinessTimeout = errors.New("readiness wait exceeded")

var errNotReady = errors.New("not ready")

// CheckFunc reports whether the dependent service is ready.
type CheckFunc func(ctx context.Context) bool

// Poller retries a CheckFunc at a fixed interval until it succeeds.
type Poller struct {
	interval time.Duration
	maxWait  time.Duration
	logger   zerolog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxWait bounds the total wait. Zero keeps polling forever.
func WithMaxWait(d time.Duration) PollerOption {
	return func(p *Poller) { p.maxWait = d }
}

func WithLogger(l zerolog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l.With().Str("component", "poller").Logger() }
}

func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollUntilReady blocks until check returns true. Without a maximum wait it
// only gives up when ctx is done.
func (p *Poller) PollUntilReady(ctx context.Context, check CheckFunc) error {
	pollCtx := ctx
	if p.maxWait > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.maxWait)
		defer cancel()
	}

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		if check(pollCtx) {
			return nil
		}
		return errNotReady
	}
	notify := func(_ error, wait time.Duration) {
		p.logger.Info().Int("attempt", attempts).Dur("retry_in", wait).Msg("Waiting for data to load")
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.interval), pollCtx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		p.logger.Info().Int("attempts", attempts).Dur("waited", time.Since(start)).Msg("Data loaded successfully")
		return nil
	}

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: not ready after %s (%d attempts)", ErrReadinessTimeout, p.maxWait, attempts)
	}
	return err
}
