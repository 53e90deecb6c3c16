package surrogate

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"   // Normal operation
	CircuitStateOpen     CircuitState = "open"     // Failing, rejecting calls
	CircuitStateHalfOpen CircuitState = "halfopen" // Probing whether the model recovered
)

// Breaker tracks per-model circuit state for remote surrogates. An open
// circuit makes the model report ErrModelUnavailable without dialing.
type Breaker struct {
	// failureThreshold is the number of consecutive failures before opening the circuit
	failureThreshold int
	// successThreshold is the number of successes needed in half-open state to close
	successThreshold int
	// timeout is how long the circuit stays open before transitioning to half-open
	timeout time.Duration

	mu       sync.Mutex
	circuits map[string]*circuitState
}

type circuitState struct {
	state           CircuitState
	failureCount    int
	successCount    int
	lastStateChange time.Time
}

// NewBreaker creates a breaker. Non-positive thresholds default to 1.
func NewBreaker(failureThreshold, successThreshold int, timeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		circuits:         make(map[string]*circuitState),
	}
}

// circuit returns the state for key, creating a closed one. Caller holds b.mu.
func (b *Breaker) circuit(key string, now time.Time) *circuitState {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuitState{state: CircuitStateClosed, lastStateChange: now}
		b.circuits[key] = c
	}
	return c
}

func (b *Breaker) transition(key string, c *circuitState, to CircuitState, now time.Time) {
	c.state = to
	c.lastStateChange = now
	breakerTransitions.WithLabelValues(key, string(to)).Inc()
}

// AllowRequest reports whether a call to key may proceed at now
func (b *Breaker) AllowRequest(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key, now)
	if c.state == CircuitStateOpen {
		if now.Sub(c.lastStateChange) < b.timeout {
			return false
		}
		c.successCount = 0
		b.transition(key, c, CircuitStateHalfOpen, now)
	}
	return true
}

// RecordSuccess notes a successful call
func (b *Breaker) RecordSuccess(key string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key, now)
	switch c.state {
	case CircuitStateHalfOpen:
		c.successCount++
		if c.successCount >= b.successThreshold {
			c.failureCount = 0
			b.transition(key, c, CircuitStateClosed, now)
		}
	case CircuitStateClosed:
		c.failureCount = 0
	}
}

// RecordFailure notes a failed call
func (b *Breaker) RecordFailure(key string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key, now)
	c.failureCount++
	switch c.state {
	case CircuitStateHalfOpen:
		// Any failure while probing reopens the circuit
		c.successCount = 0
		b.transition(key, c, CircuitStateOpen, now)
	case CircuitStateClosed:
		if c.failureCount >= b.failureThreshold {
			b.transition(key, c, CircuitStateOpen, now)
		}
	}
}

// State returns the state of key at now, applying the open→half-open timeout
func (b *Breaker) State(key string, now time.Time) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return CircuitStateClosed
	}
	if c.state == CircuitStateOpen && now.Sub(c.lastStateChange) >= b.timeout {
		c.successCount = 0
		b.transition(key, c, CircuitStateHalfOpen, now)
	}
	return c.state
}
