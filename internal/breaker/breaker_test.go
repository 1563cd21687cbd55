package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casaline/edge/internal/clock"
)

func newTestBreaker(threshold int, resetTimeout time.Duration) (*Breaker, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1000, 0))
	b := New(Options{Name: "dep", FailureThreshold: threshold, ResetTimeout: resetTimeout}, clk)
	return b, clk
}

func TestOpensAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)

	if b.State() != StateClosed {
		t.Fatalf("initial state = %v, want closed", b.State())
	}
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatal("opened before threshold")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 2 failures", b.State())
	}
	if b.CanMakeRequest() {
		t.Fatal("request permitted while open")
	}
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	b.RecordFailure()
	b.RecordFailure()

	clk.Advance(1001 * time.Millisecond)
	if !b.CanMakeRequest() {
		t.Fatal("probe refused after reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	b.RecordFailure()
	b.RecordFailure()
	clk.Advance(1001 * time.Millisecond)
	b.CanMakeRequest()

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probe success", b.State())
	}
	if got := b.Stats().Failures; got != 0 {
		t.Fatalf("failures = %d, want 0", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	b.RecordFailure()
	b.RecordFailure()
	clk.Advance(1001 * time.Millisecond)
	b.CanMakeRequest()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after probe failure", b.State())
	}
	if b.CanMakeRequest() {
		t.Fatal("request permitted immediately after reopening")
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	b.RecordFailure()
	clk.Advance(1001 * time.Millisecond)

	if !b.CanMakeRequest() {
		t.Fatal("first probe refused")
	}
	if b.CanMakeRequest() {
		t.Fatal("second caller admitted while probe outstanding")
	}

	b.RecordSuccess()
	if !b.CanMakeRequest() {
		t.Fatal("request refused after probe succeeded")
	}
}

func TestResetForcesClosed(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("breaker did not open")
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", b.State())
	}
	if !b.CanMakeRequest() {
		t.Fatal("request refused after Reset")
	}
}

func TestStatsRetryAfter(t *testing.T) {
	b, clk := newTestBreaker(1, 10*time.Second)
	b.RecordFailure()

	clk.Advance(4 * time.Second)
	s := b.Stats()
	if s.State != StateOpen {
		t.Fatalf("state = %v, want open", s.State)
	}
	if s.RetryAfterSec != 6 {
		t.Fatalf("RetryAfterSec = %d, want 6", s.RetryAfterSec)
	}
}

func TestDoOpenBreakerUsesFallbackWithoutInvokingFn(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	b.RecordFailure()

	invoked := false
	got, err := Do(context.Background(), b, func(context.Context) (string, error) {
		invoked = true
		return "live", nil
	}, func() (string, error) {
		return "cached", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if invoked {
		t.Fatal("fn invoked while breaker open")
	}
	if got != "cached" {
		t.Fatalf("got %q, want fallback value", got)
	}
}

func TestDoOpenBreakerWithoutFallbackFails(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	b.RecordFailure()

	_, err := Do(context.Background(), b, func(context.Context) (int, error) {
		return 1, nil
	}, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestDoFailureRecordsAndFallsBack(t *testing.T) {
	b, _ := newTestBreaker(2, time.Hour)

	boom := errors.New("boom")
	got, err := Do(context.Background(), b, func(context.Context) (int, error) {
		return 0, boom
	}, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("got %d, want fallback value", got)
	}
	if b.Stats().Failures != 1 {
		t.Fatalf("failures = %d, want 1", b.Stats().Failures)
	}

	// Without a fallback the original error surfaces.
	_, err = Do(context.Background(), b, func(context.Context) (int, error) {
		return 0, boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want original error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after threshold", b.State())
	}
}

func TestDoSuccessRecords(t *testing.T) {
	b, _ := newTestBreaker(2, time.Hour)
	b.RecordFailure()

	got, err := Do(context.Background(), b, func(context.Context) (int, error) {
		return 7, nil
	}, nil)
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
	if b.Stats().Failures != 0 {
		t.Fatalf("failures = %d, want 0 after success", b.Stats().Failures)
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	r := NewRegistry(clk, Defaults{FailureThreshold: 3, ResetTimeout: time.Second})

	a := r.Get("embedder")
	if a2 := r.Get("embedder"); a2 != a {
		t.Fatal("Get returned a different breaker for the same name")
	}
	if b := r.Get("geocoder"); b == a {
		t.Fatal("distinct names share a breaker")
	}

	stats := r.Stats()
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}
	if stats[0].Name != "embedder" || stats[1].Name != "geocoder" {
		t.Fatalf("stats not sorted by name: %v", stats)
	}
}
