// Package httpcall wraps outbound HTTP calls with per-attempt timeouts,
// failure classification and retry with exponential backoff. One retry
// core drives both bindings (Client and Transport) so policy behavior
// cannot drift between them.
package httpcall

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkError is a transport-level failure. Always retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is a deadline expiry. Always retryable.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "timeout: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the remote service. Retryable only
// when the status is in the policy's retryable set.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Body)
}

// Classify normalizes an arbitrary call failure into the taxonomy above.
// Errors already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		netErr *NetworkError
		toErr  *TimeoutError
		apiErr *APIError
	)
	if errors.As(err, &netErr) || errors.As(err, &toErr) || errors.As(err, &apiErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}
