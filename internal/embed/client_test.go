package embed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/clock"
	"github.com/casaline/edge/internal/httpcall"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string, opts Options) (*Client, *breaker.Breaker) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1000, 0))
	br := breaker.New(breaker.Options{Name: BreakerName, FailureThreshold: 1, ResetTimeout: time.Minute}, clk)
	policy := httpcall.RetryPolicy{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2,
		Timeout:        time.Second,
	}
	opts.URL = url
	hc := httpcall.NewClient(http.DefaultClient, policy, clock.Real{})
	return NewClient(opts, hc, br, discardLogger()), br
}

func TestEmbedReturnsOneVectorPerText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vecs := make([][]float32, len(req.Texts))
		for i := range vecs {
			vecs[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vecs})
	}))
	defer srv.Close()

	c, br := newTestClient(t, srv.URL, Options{Dimensions: 2})
	vecs, err := c.Embed(context.Background(), []string{"garden flat", "loft with terrace"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[1][0] != 1 {
		t.Fatalf("vecs[1] = %v", vecs[1])
	}
	if br.State() != breaker.StateClosed {
		t.Fatalf("breaker state = %v", br.State())
	}
}

func TestEmbedVectorCountMismatchIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Options{Dimensions: 1})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
}

func TestEmbedOpenBreakerServesZeroVectors(t *testing.T) {
	c, br := newTestClient(t, "http://127.0.0.1:1", Options{Dimensions: 3, FallbackZero: true})
	br.RecordFailure() // threshold 1: open

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != 3 {
			t.Fatalf("vector width = %d, want 3", len(v))
		}
		for _, x := range v {
			if x != 0 {
				t.Fatalf("non-zero fallback vector: %v", v)
			}
		}
	}
}

func TestEmbedOpenBreakerWithoutFallbackFails(t *testing.T) {
	c, br := newTestClient(t, "http://127.0.0.1:1", Options{Dimensions: 3})
	br.RecordFailure()

	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestEmbedNoTexts(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1", Options{Dimensions: 3})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if vecs != nil {
		t.Fatalf("vecs = %v, want nil", vecs)
	}
}
