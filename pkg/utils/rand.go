package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator. A RandSource is not safe for
// concurrent use; give each goroutine its own source via Derive.
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed selects a time-based seed.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with
func (r *RandSource) Seed() int64 {
	return r.seed
}

// Derive returns an independent source whose seed is a deterministic
// function of this source's seed and stream.
func (r *RandSource) Derive(stream int64) *RandSource {
	return NewRandSource(mixSeed(r.seed, stream))
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// OpenFloat64 returns a random float64 in the open interval (0.0, 1.0)
func (r *RandSource) OpenFloat64() float64 {
	for {
		if f := r.rng.Float64(); f > 0 {
			return f
		}
	}
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// mixSeed is a splitmix64 step over seed and stream; never returns 0.
func mixSeed(seed, stream int64) int64 {
	z := uint64(seed) + uint64(stream+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return int64(z)
}
