// embedmock is a stand-in for the embedding sidecar, for local runs of
// edged. It returns deterministic vectors and can inject failures and
// latency to exercise the retry and breaker paths.
package main

import (
	"encoding/json"
	"flag"
	"hash/fnv"
	"net/http"
	"sync/atomic"
	"time"
)

func main() {
	var addr string
	var dims int
	var failEvery int
	var latency time.Duration
	flag.StringVar(&addr, "addr", ":9400", "listen address")
	flag.IntVar(&dims, "dims", 384, "embedding vector width")
	flag.IntVar(&failEvery, "fail-every", 0, "return 500 on every Nth request (0 disables)")
	flag.DurationVar(&latency, "latency", 0, "artificial delay per request")
	flag.Parse()

	var calls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if n := calls.Add(1); failEvery > 0 && n%int64(failEvery) == 0 {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}

		var in struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		vecs := make([][]float32, len(in.Texts))
		for i, t := range in.Texts {
			vecs[i] = vector(t, dims)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	_ = srv.ListenAndServe()
}

// vector derives a repeatable pseudo-embedding from the text so the same
// input always maps to the same vector.
func vector(text string, dims int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	out := make([]float32, dims)
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = float32(seed%2000)/1000 - 1
	}
	return out
}
