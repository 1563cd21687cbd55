// Package breaker implements a named three-state circuit breaker that
// guards calls to a dependency which may be persistently failing.
package breaker

import (
	"sync"
	"time"

	"github.com/casaline/edge/internal/clock"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

type Options struct {
	// Name labels the breaker in logs, stats and registry lookups.
	Name string
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker; defaults to 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before permitting
	// a probe; defaults to 30s.
	ResetTimeout time.Duration
}

// Breaker is safe for concurrent use. All transitions happen under one
// mutex so concurrent successes and failures cannot lose updates during a
// state change.
type Breaker struct {
	opts Options
	clk  clock.Clock

	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time
	// probing holds the single half-open probe token. While a probe is
	// outstanding, other callers are refused as if the breaker were
	// still open.
	probing bool
}

func New(opts Options, clk clock.Clock) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultResetTimeout
	}
	return &Breaker{opts: opts, clk: clk, state: StateClosed}
}

func (b *Breaker) Name() string { return b.opts.Name }

// CanMakeRequest reports whether a call may proceed. In the open state it
// returns true once the reset timeout has elapsed, transitioning to
// half-open and handing the caller the probe token.
func (b *Breaker) CanMakeRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clk.Since(b.lastFailureAt) > b.opts.ResetTimeout {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure, opening the breaker when the threshold
// is reached or when a half-open probe fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.clk.Now()
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.failures = b.opts.FailureThreshold
		b.probing = false
	default:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.state = StateOpen
		}
	}
}

// Reset forces the breaker closed with zero failures, for administrative
// recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type Stats struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	RetryAfterSec int       `json:"retry_after_seconds"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	retry := 0
	if b.state == StateOpen {
		rem := b.opts.ResetTimeout - b.clk.Since(b.lastFailureAt)
		if rem > 0 {
			retry = int((rem + time.Second - 1) / time.Second)
		}
	}
	return Stats{
		Name:          b.opts.Name,
		State:         b.state,
		Failures:      b.failures,
		LastFailureAt: b.lastFailureAt,
		RetryAfterSec: retry,
	}
}
