package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	cb := New(2, 1, time.Minute, WithClock(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		if err := cb.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected errBoom, got %v", i+1, err)
		}
	}
	if cb.State() != Open {
		t.Fatalf("expected Open, got %s", cb.State())
	}

	called := false
	err := cb.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("function must not run while the circuit is open")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	cb := New(1, 1, time.Minute, WithClock(func() time.Time { return now }))

	_ = cb.Do(func() error { return errBoom })
	if cb.State() != Open {
		t.Fatalf("expected Open, got %s", cb.State())
	}

	now = now.Add(time.Minute)
	if cb.State() != HalfOpen {
		t.Fatalf("expected Half-Open after timeout, got %s", cb.State())
	}
	if err := cb.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %s", cb.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(2, 1, time.Minute)
	_ = cb.Do(func() error { return errBoom })
	_ = cb.Do(func() error { return nil })
	_ = cb.Do(func() error { return errBoom })
	if cb.State() != Closed {
		t.Fatalf("non-consecutive failures must not trip the circuit, got %s", cb.State())
	}
}
