package grm

import (
	"math/rand/v2"
	"testing"

	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/stretchr/testify/require"
)

// simulated draws a people×items matrix with abilities from N(0,1), evenly
// spaced thresholds and discriminations in [1, 2).
func simulated(t *testing.T, people, items, categories int, seed uint64) (*ResponseMatrix, []float64, itemFixture) {
	t.Helper()
	rng := prob.NewRand(seed)
	abilities := make([]float64, people)
	for n := range abilities {
		abilities[n] = rng.NormFloat64()
	}
	fx := newItemFixture(items, categories, rng)
	x, err := Simulate(abilities, people, fx.Alpha, fx.Cut, nil, rng)
	require.NoError(t, err)
	return x, abilities, fx
}

type itemFixture struct {
	Alpha []float64
	Cut   Cutpoints
}

func newItemFixture(items, categories int, rng *rand.Rand) itemFixture {
	levels := categories - 1
	alpha := make([]float64, items)
	base := make([]float64, items)
	inc := make([]float64, items*(levels-1))
	for i := range alpha {
		alpha[i] = 1 + rng.Float64()
		base[i] = -float64(levels-1)/2 + rng.Float64() - 0.5
	}
	for k := range inc {
		inc[k] = 1
	}
	cut, _ := BuildCutpoints(1, items, categories, base, inc)
	return itemFixture{Alpha: alpha, Cut: cut}
}

// randomPoint fills every latent variable with moderate values inside its
// support.
func randomPoint(j *Joint, rng *rand.Rand) []float64 {
	x := make([]float64, j.Dim())
	for _, b := range j.Blocks() {
		for i := b.Offset; i < b.Offset+b.Size; i++ {
			if _, ok := b.Bijector.(prob.SoftplusBijector); ok {
				x[i] = 0.5 + rng.Float64()
			} else {
				x[i] = 2*rng.Float64() - 1
			}
		}
	}
	return x
}

func withMissing(x *ResponseMatrix, cells ...[2]int) *ResponseMatrix {
	out := *x
	out.Codes = append([]int(nil), x.Codes...)
	for _, c := range cells {
		out.Codes[c[0]*x.Items+c[1]] = Missing
	}
	return &out
}
