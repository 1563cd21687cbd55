package httpcall

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy controls the retry loop. The total wall-clock bound across a
// call is Timeout*(MaxRetries+1) plus the backoff sleeps; callers that
// need a hard overall deadline wrap the whole call in an outer context.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffFactor grows the delay geometrically: the sleep before
	// retry n is InitialBackoff * BackoffFactor^n.
	BackoffFactor float64
	// Timeout is the per-attempt deadline.
	Timeout time.Duration
	// RetryableStatusCodes are the API statuses worth retrying.
	RetryableStatusCodes map[int]struct{}
}

// DefaultRetryableStatusCodes returns the standard transient set.
func DefaultRetryableStatusCodes() map[int]struct{} {
	return statusSet(408, 429, 500, 502, 503, 504)
}

func statusSet(codes ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           3,
		InitialBackoff:       250 * time.Millisecond,
		BackoffFactor:        2,
		Timeout:              10 * time.Second,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
	}
}

// Backoff returns the delay to sleep after the given zero-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	f := p.BackoffFactor
	if f <= 0 {
		f = 1
	}
	return time.Duration(float64(p.InitialBackoff) * math.Pow(f, float64(attempt)))
}

// ShouldRetry decides whether a classified failure is worth another
// attempt. Timeouts and network failures always are; an API failure only
// when its status is in the retryable set — any other 4xx is a caller bug
// and fails fast.
func (p RetryPolicy) ShouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if _, ok := p.RetryableStatusCodes[apiErr.Status]; ok {
			return true
		}
		return apiErr.Status < 400 || apiErr.Status >= 500
	}
	return true
}
