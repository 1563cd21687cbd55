package mw

import "net/http"

func MaxBodyBytes(limit int64, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fast fail when Content-Length is known.
		if r.ContentLength > limit && r.ContentLength != -1 {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", map[string]any{
				"maxBytes": limit,
			})
			return
		}

		// Safety net for chunked bodies of unknown length.
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
