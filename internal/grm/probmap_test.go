package grm

import (
	"math"
	"testing"

	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestBuildCutpointsIsMonotone(t *testing.T) {
	rng := prob.NewRand(4)
	dims, items, K := 2, 6, 5
	base := make([]float64, dims*items)
	inc := make([]float64, dims*items*(K-2))
	for k := range base {
		base[k] = 4*rng.Float64() - 2
	}
	for k := range inc {
		inc[k] = prob.HalfNormal{Sigma: 1}.Rand(rng)
	}
	inc[0] = 0

	cut, err := BuildCutpoints(dims, items, K, base, inc)
	require.NoError(t, err)
	for d := 0; d < dims; d++ {
		for i := 0; i < items; i++ {
			row := cut.Item(d, i)
			assert.Equal(t, base[d*items+i], row[0])
			for j := 1; j < len(row); j++ {
				assert.GreaterOrEqual(t, row[j], row[j-1])
			}
		}
	}
}

func TestBuildCutpointsRejectsBadShape(t *testing.T) {
	_, err := BuildCutpoints(1, 3, 4, make([]float64, 3), make([]float64, 5))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = BuildCutpoints(1, 3, 1, make([]float64, 3), nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestResponseProbsFormSimplex(t *testing.T) {
	rng := prob.NewRand(2)
	tests := []struct {
		name string
		dims int
		w    Weighting
	}{
		{"one dimension", 1, nil},
		{"linear weighting", 3, LinearWeighting{}},
		{"power weighting", 3, PowerWeighting{Exponent: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			people, items, K := 7, 4, 5
			theta := mat.NewDense(people, tt.dims, nil)
			alpha := mat.NewDense(tt.dims, items, nil)
			for n := 0; n < people; n++ {
				for d := 0; d < tt.dims; d++ {
					theta.Set(n, d, 6*rng.Float64()-3)
				}
			}
			for d := 0; d < tt.dims; d++ {
				for i := 0; i < items; i++ {
					alpha.Set(d, i, 0.1+2*rng.Float64())
				}
			}
			base := make([]float64, tt.dims*items)
			inc := make([]float64, tt.dims*items*(K-2))
			for k := range base {
				base[k] = rng.NormFloat64()
			}
			for k := range inc {
				inc[k] = rng.Float64()
			}
			cut, err := BuildCutpoints(tt.dims, items, K, base, inc)
			require.NoError(t, err)

			probs, err := ResponseProbs(theta, alpha, cut, tt.w)
			require.NoError(t, err)
			require.Len(t, probs, people*items*K)
			for c := 0; c < people*items; c++ {
				cell := probs[c*K : (c+1)*K]
				assert.InDelta(t, 1.0, floats.Sum(cell), 1e-12)
				for _, p := range cell {
					assert.GreaterOrEqual(t, p, 0.0)
				}
			}
		})
	}
}

func TestResponseProbsStochasticDominance(t *testing.T) {
	K := 5
	cut, err := BuildCutpoints(1, 1, K, []float64{-1}, []float64{0.7, 0.5, 0.9})
	require.NoError(t, err)
	alpha := mat.NewDense(1, 1, []float64{1.3})

	prev := make([]float64, K)
	for step, th := range []float64{-3, -1.5, -0.2, 0.4, 1.1, 2.5} {
		probs, err := ResponseProbs(mat.NewDense(1, 1, []float64{th}), alpha, cut, nil)
		require.NoError(t, err)
		// upper[k] = P(X >= k)
		upper := make([]float64, K)
		var tail float64
		for k := K - 1; k >= 0; k-- {
			tail += probs[k]
			upper[k] = tail
		}
		if step > 0 {
			for k := 1; k < K; k++ {
				assert.Greater(t, upper[k], prev[k], "theta %v category %d", th, k)
			}
		}
		copy(prev, upper)
	}
}

func TestResponseProbsMatchesLogisticLink(t *testing.T) {
	cut, err := BuildCutpoints(1, 1, 3, []float64{-0.5}, []float64{1})
	require.NoError(t, err)
	probs, err := ResponseProbs(mat.NewDense(1, 1, []float64{0.2}), mat.NewDense(1, 1, []float64{2}), cut, nil)
	require.NoError(t, err)

	c1 := 1 / (1 + math.Exp(2*(-0.5-0.2)))
	c2 := 1 / (1 + math.Exp(2*(0.5-0.2)))
	assert.InDeltaSlice(t, []float64{1 - c1, c1 - c2, c2}, probs, 1e-12)
}

func TestResponseProbsRejectsMismatchedShapes(t *testing.T) {
	cut, err := BuildCutpoints(1, 2, 3, []float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	_, err = ResponseProbs(mat.NewDense(1, 2, nil), mat.NewDense(1, 2, []float64{1, 1}), cut, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = ResponseProbs(mat.NewDense(1, 1, nil), mat.NewDense(1, 3, []float64{1, 1, 1}), cut, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestWeightingFavoursStrongerDimension(t *testing.T) {
	k := newKernel(Shape{Dims: 2, Items: 1, Categories: 2}, PowerWeighting{Exponent: 2})
	k.weights([]float64{1, 3}, 0)
	assert.InDelta(t, 0.1, k.f[0], 1e-12)
	assert.InDelta(t, 0.9, k.f[1], 1e-12)

	k = newKernel(Shape{Dims: 2, Items: 1, Categories: 2}, LinearWeighting{})
	k.weights([]float64{1, 3}, 0)
	assert.InDelta(t, 0.25, k.f[0], 1e-12)
}
