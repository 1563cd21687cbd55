// Package embed calls the embedding sidecar that powers semantic listing
// search. The sidecar is a separate process and the most failure-prone
// dependency of the edge, so every call goes through the retrying client
// and a named circuit breaker.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/httpcall"
)

// BreakerName labels the sidecar's breaker in the registry and in admin
// stats.
const BreakerName = "embedder"

type Options struct {
	// URL is the sidecar base URL, e.g. http://127.0.0.1:9400.
	URL string
	// Dimensions shapes the zero-vector fallback.
	Dimensions int
	// FallbackZero serves zero vectors while the breaker is open
	// instead of failing the caller; search degrades to keyword-only
	// ranking rather than erroring.
	FallbackZero bool
	// MaxRPS/Burst pace outbound calls; MaxRPS 0 disables pacing.
	MaxRPS float64
	Burst  int
}

type Client struct {
	opts Options
	hc   *httpcall.Client
	br   *breaker.Breaker
	pace *rate.Limiter
	log  *slog.Logger
}

func NewClient(opts Options, hc *httpcall.Client, br *breaker.Breaker, log *slog.Logger) *Client {
	var pace *rate.Limiter
	if opts.MaxRPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		pace = rate.NewLimiter(rate.Limit(opts.MaxRPS), burst)
	}
	return &Client{opts: opts, hc: hc, br: br, pace: pace, log: log}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text. Transient sidecar failures are
// retried with backoff; a persistently failing sidecar trips the breaker
// and, when the zero-vector fallback is enabled, degrades to zero vectors
// instead of surfacing the failure.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.pace != nil {
		if err := c.pace.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var fallback func() ([][]float32, error)
	if c.opts.FallbackZero {
		fallback = func() ([][]float32, error) {
			c.log.Warn("embedder_fallback_zero_vectors",
				slog.Int("texts", len(texts)),
				slog.String("breaker_state", string(c.br.State())),
			)
			return c.zeroVectors(len(texts)), nil
		}
	}

	return breaker.Do(ctx, c.br, func(ctx context.Context) ([][]float32, error) {
		var out embedResponse
		if err := c.hc.PostJSON(ctx, c.opts.URL+"/embed", embedRequest{Texts: texts}, &out); err != nil {
			return nil, err
		}
		if len(out.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(out.Embeddings), len(texts))
		}
		return out.Embeddings, nil
	}, fallback)
}

func (c *Client) zeroVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, c.opts.Dimensions)
	}
	return out
}
