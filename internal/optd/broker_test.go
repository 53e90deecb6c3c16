package optd

import (
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

func running(gen int) models.ProgressSnapshot {
	return models.ProgressSnapshot{JobID: "job-1", Status: models.JobStatusRunning, Generation: gen}
}

func TestBrokerKeepsOnlyNewestSnapshot(t *testing.T) {
	b := newBroker()
	sub := b.subscribe()
	defer sub.Cancel()

	for gen := 0; gen < 5; gen++ {
		b.publish(running(gen))
	}

	snap := <-sub.C
	if snap.Generation != 4 {
		t.Fatalf("expected generation 4, got %d", snap.Generation)
	}
	if snap.Sequence != 5 {
		t.Fatalf("expected sequence 5, got %d", snap.Sequence)
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("expected an empty slot, got generation %d", extra.Generation)
	default:
	}
}

func TestBrokerTerminalClosesSubscribers(t *testing.T) {
	b := newBroker()
	sub := b.subscribe()

	b.publish(running(1))
	<-sub.C
	b.publish(models.ProgressSnapshot{JobID: "job-1", Status: models.JobStatusCompleted, Generation: 2})
	b.publish(running(3)) // dropped

	snap, ok := <-sub.C
	if !ok || snap.Status != models.JobStatusCompleted {
		t.Fatalf("expected the terminal snapshot, got %+v (ok=%v)", snap, ok)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected channel to be closed after the terminal snapshot")
	}
	if n := b.subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	sub.Cancel()
}

func TestBrokerLateJoinerGetsTerminal(t *testing.T) {
	b := newBroker()
	b.publish(running(0))
	b.publish(models.ProgressSnapshot{JobID: "job-1", Status: models.JobStatusFailed, Generation: 1})

	sub := b.subscribe()
	snap, ok := <-sub.C
	if !ok || snap.Status != models.JobStatusFailed || snap.Sequence != 2 {
		t.Fatalf("expected replayed terminal snapshot, got %+v (ok=%v)", snap, ok)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}

	last, ok := b.latest()
	if !ok || last.Status != models.JobStatusFailed {
		t.Fatalf("latest returned %+v (ok=%v)", last, ok)
	}
}

func TestBrokerSubscribePrimedWithLatest(t *testing.T) {
	b := newBroker()
	if _, ok := b.latest(); ok {
		t.Fatalf("expected no snapshot before the first publish")
	}
	b.publish(running(2))

	sub := b.subscribe()
	defer sub.Cancel()
	snap := <-sub.C
	if snap.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", snap.Generation)
	}
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	b := newBroker()
	sub := b.subscribe()
	sub.Cancel()
	sub.Cancel()

	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel after Cancel")
	}
	if n := b.subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	// publishing after a cancel must not panic on the closed channel
	b.publish(running(1))
}
