package utils

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the pause before a retry
type BackoffStrategy interface {
	// NextDelay returns the delay before retry number attempt (0-indexed)
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

func NewConstantBackoff(delay time.Duration) *ConstantBackoff {
	return &ConstantBackoff{Delay: delay}
}

func (b *ConstantBackoff) NextDelay(int) time.Duration {
	return b.Delay
}

// LinearBackoff grows by Step per attempt up to Max
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration
}

func NewLinearBackoff(step, max time.Duration) *LinearBackoff {
	return &LinearBackoff{Step: step, Max: max}
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	return capDelay(float64(b.Step)*float64(attempt+1), b.Max)
}

// ExponentialBackoff multiplies Base by Multiplier per attempt up to Max.
// Jitter is the fraction of the delay randomised in both directions, so 0.5
// spreads retries over [0.5d, 1.5d].
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewExponentialBackoff returns a doubling backoff by default; jitter adds a
// ±50% spread so clients retrying together drift apart.
func NewExponentialBackoff(base, max time.Duration, multiplier float64, jitter bool) *ExponentialBackoff {
	if multiplier <= 1 {
		multiplier = 2
	}
	b := &ExponentialBackoff{Base: base, Max: max, Multiplier: multiplier}
	if jitter {
		b.Jitter = 0.5
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if b.Jitter > 0 {
		d *= 1 - b.Jitter + 2*b.Jitter*rand.Float64()
	}
	return capDelay(d, b.Max)
}

// capDelay also absorbs the +Inf a large attempt count produces
func capDelay(d float64, max time.Duration) time.Duration {
	if max > 0 && (d > float64(max) || math.IsInf(d, 1)) {
		return max
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// BackoffFromConfig maps a retry section of the daemon config to a strategy.
// Unknown kinds fall back to jittered exponential; a zero max caps at 30s.
func BackoffFromConfig(kind string, baseMs, maxMs int) BackoffStrategy {
	base := time.Duration(baseMs) * time.Millisecond
	max := time.Duration(maxMs) * time.Millisecond
	if max <= 0 {
		max = 30 * time.Second
	}

	switch kind {
	case "constant":
		return NewConstantBackoff(base)
	case "linear":
		return NewLinearBackoff(base, max)
	default:
		return NewExponentialBackoff(base, max, 2, true)
	}
}

// Wait pauses for the delay of the given retry, returning early with the
// context's error when ctx ends first.
func Wait(ctx context.Context, b BackoffStrategy, attempt int) error {
	d := b.NextDelay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
