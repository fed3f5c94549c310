package polling

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const DefaultProbeTimeout = 10 * time.Second

// Prober asks a status endpoint whether it is ready.
type Prober interface {
	Probe(ctx context.Context, endpoint string) bool
}

// HTTPProber treats any 2xx response as ready.
type HTTPProber struct {
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPProber(timeout time.Duration, logger zerolog.Logger) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "prober").Logger(),
	}
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Invalid probe request")
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Probe failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("Probe response")
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Check adapts a Prober to a CheckFunc for the given endpoint.
func Check(p Prober, endpoint string) CheckFunc {
	return func(ctx context.Context) bool {
		return p.Probe(ctx, endpoint)
	}
}
