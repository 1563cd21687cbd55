package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/embed"
	"github.com/casaline/edge/internal/httpcall"
	"github.com/casaline/edge/internal/mw"
	"github.com/casaline/edge/internal/ratelimit"
)

const maxTextsPerRequest = 64

type embedIn struct {
	Texts []string `json:"texts"`
}

type embedOut struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedHandler turns POST /v1/embed into a sidecar call. Failure detail
// stays in the logs; clients get a stable, unrevealing error body.
func embedHandler(c *embed.Client, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in embedIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			mw.WriteError(w, http.StatusBadRequest, "invalid JSON body", nil)
			return
		}
		if len(in.Texts) == 0 {
			mw.WriteError(w, http.StatusUnprocessableEntity, "texts must not be empty", nil)
			return
		}
		if len(in.Texts) > maxTextsPerRequest {
			mw.WriteError(w, http.StatusUnprocessableEntity, "too many texts", map[string]any{
				"max": maxTextsPerRequest,
			})
			return
		}

		vecs, err := c.Embed(r.Context(), in.Texts)
		if err != nil {
			status, msg := mapEmbedError(err)
			log.Error("embed_failed",
				slog.String("rid", mw.RID(r.Context())),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
			mw.WriteError(w, status, msg, nil)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embedOut{Embeddings: vecs})
	})
}

// mapEmbedError translates the failure taxonomy into client-facing
// statuses without leaking sidecar responses.
func mapEmbedError(err error) (int, string) {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	var toErr *httpcall.TimeoutError
	if errors.As(err, &toErr) {
		return http.StatusGatewayTimeout, "upstream timed out"
	}
	return http.StatusBadGateway, "upstream error"
}

// resetHandler clears a rate-limit window or a circuit breaker by name.
// Guarded by the admin key.
func resetHandler(l *ratelimit.Limiter, reg *breaker.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := r.URL.Query().Get("identifier")
		breakerName := r.URL.Query().Get("breaker")
		if identifier == "" && breakerName == "" {
			mw.WriteError(w, http.StatusBadRequest, "identifier or breaker query parameter required", nil)
			return
		}

		out := map[string]any{}
		if identifier != "" {
			if err := l.Reset(r.Context(), identifier); err != nil {
				mw.WriteError(w, http.StatusInternalServerError, "reset failed", map[string]any{
					"identifier": identifier,
				})
				return
			}
			out["identifier"] = identifier
		}
		if breakerName != "" {
			b := reg.Get(breakerName)
			b.Reset()
			out["breaker"] = breakerName
			out["state"] = string(b.State())
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
