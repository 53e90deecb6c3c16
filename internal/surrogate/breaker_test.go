package surrogate

import (
	"testing"
	"time"
)

func TestBreakerClosedState(t *testing.T) {
	b := NewBreaker(3, 2, 5*time.Second)
	now := time.Now()

	if !b.AllowRequest("burst", now) {
		t.Fatalf("expected request to be allowed in closed state")
	}
	if b.State("burst", now) != CircuitStateClosed {
		t.Fatalf("expected state to be closed, got %s", b.State("burst", now))
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, 2, 5*time.Second)
	now := time.Now()

	b.RecordFailure("burst", now)
	b.RecordFailure("burst", now)
	if b.State("burst", now) != CircuitStateClosed {
		t.Fatalf("expected state to stay closed below threshold")
	}
	b.RecordFailure("burst", now)

	if b.State("burst", now) != CircuitStateOpen {
		t.Fatalf("expected state to be open after 3 failures, got %s", b.State("burst", now))
	}
	if b.AllowRequest("burst", now) {
		t.Fatalf("expected request to be rejected in open state")
	}
	if !b.AllowRequest("mass", now) {
		t.Fatalf("expected other models to be unaffected")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, 1, time.Second)
	now := time.Now()

	b.RecordFailure("burst", now)
	b.RecordSuccess("burst", now)
	b.RecordFailure("burst", now)
	if b.State("burst", now) != CircuitStateClosed {
		t.Fatalf("expected success to reset the failure count")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(1, 2, 100*time.Millisecond)
	now := time.Now()

	b.RecordFailure("burst", now)
	later := now.Add(150 * time.Millisecond)

	if state := b.State("burst", later); state != CircuitStateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", state)
	}
	if !b.AllowRequest("burst", later) {
		t.Fatalf("expected request to be allowed in half-open state")
	}

	b.RecordSuccess("burst", later)
	if state := b.State("burst", later); state != CircuitStateHalfOpen {
		t.Fatalf("expected to remain half-open until success threshold, got %s", state)
	}
	b.RecordSuccess("burst", later)
	if state := b.State("burst", later); state != CircuitStateClosed {
		t.Fatalf("expected closed after 2 successes, got %s", state)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 2, 100*time.Millisecond)
	now := time.Now()

	b.RecordFailure("burst", now)
	later := now.Add(150 * time.Millisecond)
	if !b.AllowRequest("burst", later) {
		t.Fatalf("expected probe to be allowed")
	}
	b.RecordFailure("burst", later)
	if state := b.State("burst", later); state != CircuitStateOpen {
		t.Fatalf("expected failure in half-open to reopen the circuit, got %s", state)
	}
}
