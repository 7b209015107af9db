package random

import "math/rand"

// Source is a seeded pseudo-random source that records every draw.
//
// Given the same seed, a Source produces the same sequence of values on
// every run. The recorded draws let a committed action result carry the
// exact rolls that produced it.
type Source struct {
	seed  int64
	rng   *rand.Rand
	draws []int
}

// NewSource creates a recorded source from an explicit seed.
func NewSource(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// IntN draws a value in [1, n] and records it.
func (s *Source) IntN(n int) int {
	value := s.rng.Intn(n) + 1
	s.draws = append(s.draws, value)
	return value
}

// Draws returns a copy of every value drawn so far, in draw order.
func (s *Source) Draws() []int {
	out := make([]int, len(s.draws))
	copy(out, s.draws)
	return out
}
