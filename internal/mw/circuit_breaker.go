package mw

import (
	"net/http"
	"strconv"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/httpx"
)

// CircuitBreak guards a handler whose work depends on a fallible
// downstream. A 5xx from the handler counts as a downstream failure; 4xx
// does not, since that is the caller's fault, not the dependency's health.
func CircuitBreak(b *breaker.Breaker, next http.Handler) http.Handler {
	if b == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.CanMakeRequest() {
			stats := b.Stats()
			if stats.RetryAfterSec > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(stats.RetryAfterSec))
			}
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable", map[string]any{
				"dependency": b.Name(),
			})
			return
		}

		sw := &httpx.StatusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.Status
		if status == 0 {
			status = http.StatusOK
		}
		if status < 500 {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	})
}
