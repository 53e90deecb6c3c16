package optd

import (
	"sync"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// Subscription delivers progress snapshots of one job. C is closed after the
// terminal snapshot, or when the subscription is cancelled.
type Subscription struct {
	C <-chan models.ProgressSnapshot

	cancel func()
}

// Cancel stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// broker fans snapshots out to subscribers. Every subscriber has a one-slot
// buffer; a snapshot that finds the slot full replaces the one waiting there,
// so a slow subscriber skips intermediate generations but never sees them out
// of order. The terminal snapshot is kept and replayed to late joiners.
type broker struct {
	mu     sync.Mutex
	seq    int64
	last   *models.ProgressSnapshot
	subs   map[chan models.ProgressSnapshot]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[chan models.ProgressSnapshot]struct{})}
}

// publish stamps snap with the next sequence number and delivers it to every
// subscriber. A terminal snapshot closes the broker; snapshots published after
// it are dropped.
func (b *broker) publish(snap models.ProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	snap.Sequence = b.seq
	b.last = &snap
	for ch := range b.subs {
		offer(ch, snap)
	}
	if snap.Terminal() {
		b.closed = true
		for ch := range b.subs {
			close(ch)
		}
		b.subs = nil
	}
}

// offer replaces whatever is waiting in the slot with snap. Only the
// publisher sends, under the broker lock, so the send cannot block.
func offer(ch chan models.ProgressSnapshot, snap models.ProgressSnapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- snap
}

// subscribe returns a subscription primed with the latest snapshot
func (b *broker) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.ProgressSnapshot, 1)
	if b.last != nil {
		ch <- *b.last
	}
	if b.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}

	b.subs[ch] = struct{}{}
	var once sync.Once
	return &Subscription{C: ch, cancel: func() {
		once.Do(func() { b.unsubscribe(ch) })
	}}
}

func (b *broker) unsubscribe(ch chan models.ProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// latest returns the most recent snapshot, if any
func (b *broker) latest() (models.ProgressSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return models.ProgressSnapshot{}, false
	}
	return *b.last, true
}

// subscribers returns the number of live subscriptions
func (b *broker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
