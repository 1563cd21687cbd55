package breaker

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the breaker refuses a call and no
// fallback was supplied.
var ErrCircuitOpen = errors.New("service unavailable: circuit open")

// Do runs fn under the breaker. When the breaker refuses the call, the
// fallback (if any) supplies the result instead; without a fallback the
// call fails with ErrCircuitOpen. A failed fn records the failure and then
// falls back the same way, re-raising the original error only when no
// fallback exists. Do never retries; retrying is the caller's concern,
// composed around or through the breaker.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback func() (T, error)) (T, error) {
	var zero T

	if !b.CanMakeRequest() {
		if fallback != nil {
			return fallback()
		}
		return zero, fmt.Errorf("%s: %w", b.Name(), ErrCircuitOpen)
	}

	res, err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		if fallback != nil {
			return fallback()
		}
		return zero, err
	}
	b.RecordSuccess()
	return res, nil
}
