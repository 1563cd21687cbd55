package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/casaline/edge/internal/ratelimit"
)

const rejectMessage = "Too many requests, please try again later"

// RateLimit checks every request against the limiter, keyed by the
// resolved identity. Admission headers are set on every response; a
// rejected request gets a 429 with a retryAfter hint. The limiter itself
// fails open on store trouble, so this middleware never turns a backing
// store outage into rejected traffic.
func RateLimit(l *ratelimit.Limiter, ids IdentityResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.Check(r.Context(), ids.Identify(r).Key())

		resetSec := ceilSeconds(res.ResetIn)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(resetSec))
			writeError(w, http.StatusTooManyRequests, rejectMessage, map[string]any{
				"retryAfter": resetSec,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
