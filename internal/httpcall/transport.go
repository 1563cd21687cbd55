package httpcall

import (
	"context"
	"io"
	"net/http"

	"github.com/casaline/edge/internal/clock"
)

// Transport is the http.RoundTripper binding of the retry core, for
// callers that already hold an *http.Client. It applies the same
// per-attempt deadline, classification and backoff as Client; because a
// RoundTripper must hand the response back, a non-retryable or exhausted
// error status is returned as the final *http.Response rather than as an
// APIError.
type Transport struct {
	Base   http.RoundTripper
	Policy RetryPolicy
	Clock  clock.Clock
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// A body without GetBody cannot be replayed; such requests get a
	// single attempt.
	maxRetries := t.Policy.MaxRetries
	if req.Body != nil && req.GetBody == nil {
		maxRetries = 0
	}

	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		areq, cancel, err := t.prepare(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := base.RoundTrip(areq)
		if err != nil {
			cancel()
			lastErr = Classify(err)
			if attempt == maxRetries || !t.Policy.ShouldRetry(lastErr) {
				return nil, lastErr
			}
		} else {
			retryable := resp.StatusCode >= 400 && t.Policy.ShouldRetry(&APIError{Status: resp.StatusCode})
			if !retryable || attempt == maxRetries {
				resp.Body = &cancelBody{rc: resp.Body, cancel: cancel}
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
			_ = resp.Body.Close()
			cancel()
		}

		select {
		case <-t.Clock.After(t.Policy.Backoff(attempt)):
		case <-ctx.Done():
			return nil, Classify(ctx.Err())
		}
	}
}

func (t *Transport) prepare(ctx context.Context, req *http.Request, attempt int) (*http.Request, context.CancelFunc, error) {
	actx := ctx
	cancel := context.CancelFunc(func() {})
	if t.Policy.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, t.Policy.Timeout)
	}

	areq := req.Clone(actx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, nil, Classify(err)
		}
		areq.Body = body
	}
	return areq, cancel, nil
}

// cancelBody ties the attempt's context to the response body so resources
// are released when the caller finishes reading.
type cancelBody struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Read(p []byte) (int, error) { return b.rc.Read(p) }

func (b *cancelBody) Close() error {
	err := b.rc.Close()
	b.cancel()
	return err
}
