package improvement

import "fmt"

// FrontTracker records the Pareto-front size after every generation. The
// optimizer never stops on it; callers read the growth curve to judge
// saturation themselves.
type FrontTracker struct {
	window int
	sizes  []int
}

// NewFrontTracker creates a tracker that calls the front saturated once its
// size has not changed for window generations
func NewFrontTracker(window int) *FrontTracker {
	if window <= 0 {
		window = 10
	}
	return &FrontTracker{window: window}
}

// Record appends the front size of the latest generation
func (t *FrontTracker) Record(size int) {
	t.sizes = append(t.sizes, size)
}

// Sizes returns the recorded growth curve
func (t *FrontTracker) Sizes() []int {
	out := make([]int, len(t.sizes))
	copy(out, t.sizes)
	return out
}

// Growth returns the size change since the previous generation
func (t *FrontTracker) Growth() int {
	n := len(t.sizes)
	switch n {
	case 0:
		return 0
	case 1:
		return t.sizes[0]
	}
	return t.sizes[n-1] - t.sizes[n-2]
}

// Saturated reports whether the front size has been flat for the window
func (t *FrontTracker) Saturated() (bool, string) {
	if len(t.sizes) <= t.window {
		return false, ""
	}
	recent := t.sizes[len(t.sizes)-t.window-1:]
	for _, s := range recent[1:] {
		if s != recent[0] {
			return false, ""
		}
	}
	return true, fmt.Sprintf("front size %d unchanged for %d generations", recent[0], t.window)
}
