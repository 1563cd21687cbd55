package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/clock"
	"github.com/casaline/edge/internal/embed"
	"github.com/casaline/edge/internal/httpcall"
	"github.com/casaline/edge/internal/ratelimit"
	"github.com/casaline/edge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEmbedHandlerRejectsBadInput(t *testing.T) {
	h := embedHandler(nil, testLogger())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"empty texts", `{"texts":[]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestEmbedHandlerRoundTrip(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vecs := make([][]float32, len(in.Texts))
		for i := range vecs {
			vecs[i] = []float32{1, 2}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	}))
	defer sidecar.Close()

	clk := clock.NewFake(time.Unix(1000, 0))
	br := breaker.New(breaker.Options{Name: "embedder"}, clk)
	caller := httpcall.NewClient(http.DefaultClient, httpcall.DefaultRetryPolicy(), clock.Real{})
	c := embed.NewClient(embed.Options{URL: sidecar.URL, Dimensions: 2}, caller, br, testLogger())

	h := embedHandler(c, testLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(`{"texts":["a","b"]}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out embedOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Embeddings) != 2 {
		t.Fatalf("got %d embeddings", len(out.Embeddings))
	}
}

func TestMapEmbedError(t *testing.T) {
	if code, _ := mapEmbedError(breaker.ErrCircuitOpen); code != http.StatusServiceUnavailable {
		t.Fatalf("open breaker mapped to %d", code)
	}
	if code, _ := mapEmbedError(&httpcall.TimeoutError{Err: context.DeadlineExceeded}); code != http.StatusGatewayTimeout {
		t.Fatalf("timeout mapped to %d", code)
	}
	if code, _ := mapEmbedError(&httpcall.APIError{Status: 500}); code != http.StatusBadGateway {
		t.Fatalf("api error mapped to %d", code)
	}
}

func TestResetHandlerClearsLimiterWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	st := store.NewMemory(clk, 0)
	defer st.Close()

	limiter := ratelimit.New(ratelimit.Options{Interval: time.Minute, MaxRequests: 1}, st, testLogger())
	reg := breaker.NewRegistry(clk, breaker.Defaults{})

	ctx := context.Background()
	limiter.Check(ctx, "ip:1.2.3.4")
	if res := limiter.Check(ctx, "ip:1.2.3.4"); res.Allowed {
		t.Fatal("second request should be rejected")
	}

	h := resetHandler(limiter, reg)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/-/reset?identifier=ip:1.2.3.4", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if res := limiter.Check(ctx, "ip:1.2.3.4"); !res.Allowed {
		t.Fatal("window should be clear after reset")
	}
}

func TestResetHandlerRequiresTarget(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	st := store.NewMemory(clk, 0)
	defer st.Close()

	h := resetHandler(ratelimit.New(ratelimit.Options{Interval: time.Minute, MaxRequests: 1}, st, testLogger()),
		breaker.NewRegistry(clk, breaker.Defaults{}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/-/reset", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
