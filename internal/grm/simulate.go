package grm

import (
	"fmt"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
)

// Simulate draws a response matrix from the graded response map at the
// given abilities (people×dims), discriminations (dims×items) and
// thresholds.
func Simulate(abilities []float64, people int, discriminations []float64, cut Cutpoints, w Weighting, rng *rand.Rand) (*ResponseMatrix, error) {
	dims, items := cut.Dims, cut.Items
	if len(abilities) != people*dims || len(discriminations) != dims*items {
		return nil, fmt.Errorf("%w: %d abilities, %d discriminations for %d people, %d dims, %d items",
			ErrShapeMismatch, len(abilities), len(discriminations), people, dims, items)
	}
	if w == nil {
		w = PowerWeighting{Exponent: 1}
	}
	K := cut.Levels + 1
	k := newKernel(Shape{People: people, Items: items, Dims: dims, Categories: K}, w)
	x := &ResponseMatrix{People: people, Items: items, Categories: K, Codes: make([]int, people*items)}
	probs := make([]float64, K)
	for n := 0; n < people; n++ {
		theta := abilities[n*dims : (n+1)*dims]
		for i := 0; i < items; i++ {
			k.probs(theta, discriminations, cut, i, probs)
			for c, v := range probs {
				if v < 0 {
					probs[c] = 0
				}
			}
			x.Codes[n*items+i] = prob.SampleCategorical(probs, rng)
		}
	}
	return x, nil
}

// SimulateFromPrior draws parameters from the joint prior and responses
// from the likelihood.
func (j *Joint) SimulateFromPrior(rng *rand.Rand) (*Params, *ResponseMatrix, error) {
	p := j.SamplePrior(rng)
	cut, err := p.Cutpoints(j.shape)
	if err != nil {
		return nil, nil, err
	}
	x, err := Simulate(p.Abilities, j.shape.People, p.Discriminations, cut, j.cfg.weighting(), rng)
	if err != nil {
		return nil, nil, err
	}
	return p, x, nil
}
