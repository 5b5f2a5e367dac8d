package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	// Still open
	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// Advance past timeout
	now = now.Add(2 * time.Second)

	// Half-open: one call is allowed.
	called := false
	err = b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error in half-open, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called in half-open")
	}

	// Success should close the circuit
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected state closed after half-open success, got %s", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	// Advance past timeout to reach half-open
	now = now.Add(2 * time.Second)

	// Fail in half-open → should reopen
	_ = b.Execute(func() error { return errTest })

	if got := b.State(); got != StateOpen {
		t.Fatalf("expected state open after half-open failure, got %s", got)
	}

	// Calls should be rejected
	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	// Two failures
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	// One success resets
	_ = b.Execute(func() error { return nil })

	// Two more failures should not trip (only 2, need 3)
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	// Still closed
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	now = now.Add(2 * time.Second)

	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("expected half_open after timeout, got %s", got)
	}

	err := b.Execute(func() error {
		// A second caller arriving while the probe runs is rejected.
		if inner := b.Execute(func() error { return nil }); !errors.Is(inner, ErrCircuitOpen) {
			return fmt.Errorf("concurrent probe should be rejected, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after probe success, got %s", got)
	}
}

func TestCancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Second)

	err := b.Execute(func() error { return fmt.Errorf("generate: %w", context.Canceled) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to pass through, got %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("cancellation should not open the circuit, got %s", got)
	}
}

func TestFailureFilter(t *testing.T) {
	errCaller := errors.New("bad request")
	b := NewBreaker(1, time.Second).WithFailureFilter(func(err error) bool {
		return !errors.Is(err, errCaller)
	})

	_ = b.Execute(func() error { return errCaller })
	if got := b.State(); got != StateClosed {
		t.Fatalf("filtered error should not count, got %s", got)
	}
	_ = b.Execute(func() error { return errTest })
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open after counted failure, got %s", got)
	}
}
