package prob

import "math/rand/v2"

// NewRand returns a seeded generator. Every sampling routine takes one of
// these explicitly so runs are reproducible.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
