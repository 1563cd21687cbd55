// Package ratelimit implements a per-identifier fixed-window request
// counter over an atomic counter store.
//
// The window is renewing: every check pushes the key's expiry out by the
// full interval, so an identifier that keeps arriving faster than the
// interval never sees its count clear. Only a quiet period of at least one
// interval rolls the window over.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/casaline/edge/internal/store"
)

const (
	DefaultPrefix = "ratelimit:"

	// approachingThreshold triggers a warning log when an identifier has
	// fewer than this many requests left in the window.
	approachingThreshold = 5
)

// Options configure a Limiter. Immutable once the limiter is constructed.
type Options struct {
	// Interval is the window length.
	Interval time.Duration
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
	// Prefix namespaces counter keys; defaults to "ratelimit:".
	Prefix string
	// EnableLogging emits rejection and approaching-limit events.
	EnableLogging bool
}

// Result is a single admission decision.
type Result struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Limit is the window capacity.
	Limit int
	// Remaining is max(0, Limit - Total).
	Remaining int
	// ResetIn is the time until the window clears, assuming no further
	// requests arrive.
	ResetIn time.Duration
	// Total is the count observed this window, including this request.
	Total int
}

type Limiter struct {
	opts  Options
	store store.Counter
	log   *slog.Logger
}

func New(opts Options, st store.Counter, log *slog.Logger) *Limiter {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Limiter{opts: opts, store: st, log: log}
}

// Check records one request for identifier and decides whether it is
// admitted. A store failure never rejects: the limiter fails open, logs a
// warning and reports a full window remaining. Availability wins over
// strict enforcement when the backing store is down.
func (l *Limiter) Check(ctx context.Context, identifier string) Result {
	key := l.opts.Prefix + identifier

	count, prev, err := l.store.Incr(ctx, key, l.opts.Interval)
	if err != nil {
		l.log.Warn("rate_limit_store_unavailable",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()),
		)
		return Result{
			Allowed:   true,
			Limit:     l.opts.MaxRequests,
			Remaining: l.opts.MaxRequests,
			ResetIn:   l.opts.Interval,
			Total:     0,
		}
	}

	resetIn := l.opts.Interval
	if prev >= 0 {
		resetIn = prev
	}

	remaining := l.opts.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   count <= int64(l.opts.MaxRequests),
		Limit:     l.opts.MaxRequests,
		Remaining: remaining,
		ResetIn:   resetIn,
		Total:     int(count),
	}

	if l.opts.EnableLogging {
		if !res.Allowed {
			l.log.Warn("rate_limit_exceeded",
				slog.String("identifier", identifier),
				slog.Int("total", res.Total),
				slog.Int("limit", res.Limit),
				slog.String("reset_in", res.ResetIn.String()),
			)
		} else if res.Remaining < approachingThreshold {
			l.log.Warn("rate_limit_approaching",
				slog.String("identifier", identifier),
				slog.Int("remaining", res.Remaining),
				slog.Int("limit", res.Limit),
			)
		}
	}

	return res
}

// Reset clears the counter for identifier, opening a fresh window.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.Reset(ctx, l.opts.Prefix+identifier)
}

// Options returns the limiter's configuration.
func (l *Limiter) Options() Options { return l.opts }
