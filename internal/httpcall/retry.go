package httpcall

import (
	"context"

	"github.com/casaline/edge/internal/clock"
)

// Do runs op under the retry policy. Each attempt gets its own deadline;
// when it expires the attempt's context is cancelled so the in-flight
// request is torn down, not merely abandoned. Cancelling ctx stops the
// loop between attempts. On exhaustion the last classified failure is
// returned unchanged.
func Do[T any](ctx context.Context, clk clock.Clock, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		res, err := runAttempt(ctx, p, op)
		if err == nil {
			return res, nil
		}
		last = Classify(err)

		if attempt == p.MaxRetries || !p.ShouldRetry(last) {
			break
		}

		select {
		case <-clk.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return zero, Classify(ctx.Err())
		}
	}
	return zero, last
}

func runAttempt[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(actx)
}
