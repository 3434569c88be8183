package grm

import (
	"math"
	"testing"

	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMissingCellContributesZero(t *testing.T) {
	x, _, _ := simulated(t, 6, 5, 4, 11)
	j, err := NewJoint(Shape{People: 6, Items: 5, Dims: 1, Categories: 4}, DefaultConfig())
	require.NoError(t, err)
	p := j.View(randomPoint(j, prob.NewRand(1)))

	full, err := j.LogLikelihood(x, p)
	require.NoError(t, err)
	masked, err := j.LogLikelihood(withMissing(x, [2]int{2, 3}), p)
	require.NoError(t, err)

	cut, err := p.Cutpoints(j.Shape())
	require.NoError(t, err)
	probs, err := ResponseProbs(
		mat.NewDense(6, 1, p.Abilities),
		mat.NewDense(1, 5, p.Discriminations),
		cut, nil)
	require.NoError(t, err)
	cell := probs[(2*5+3)*4+x.At(2, 3)]

	for n := range full {
		if n == 2 {
			assert.InDelta(t, full[n]-math.Log(cell), masked[n], 1e-10)
			continue
		}
		assert.Equal(t, full[n], masked[n])
	}
}

func TestAllMissingRespondentHasZeroLikelihood(t *testing.T) {
	x, _, _ := simulated(t, 4, 3, 3, 5)
	x = withMissing(x, [2]int{1, 0}, [2]int{1, 1}, [2]int{1, 2})
	j, err := NewJoint(Shape{People: 4, Items: 3, Dims: 1, Categories: 3}, DefaultConfig())
	require.NoError(t, err)
	ll, err := j.LogLikelihood(x, j.View(randomPoint(j, prob.NewRand(2))))
	require.NoError(t, err)
	assert.Equal(t, 0.0, ll[1])
	assert.Less(t, ll[0], 0.0)
}

func TestPosteriorGradientMatchesFiniteDifferences(t *testing.T) {
	tests := []struct {
		name string
		cfg  func() Config
	}{
		{"direct", func() Config { c := DefaultConfig(); c.Auxiliary = false; return c }},
		{"auxiliary", DefaultConfig},
		{"power weighting", func() Config { c := DefaultConfig(); c.Weighting = PowerWeighting{Exponent: 2}; return c }},
		{"linear weighting", func() Config { c := DefaultConfig(); c.Weighting = LinearWeighting{}; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			people, items, K := 4, 3, 4
			shape := Shape{People: people, Items: items, Dims: 2, Categories: K}
			j, err := NewJoint(shape, tt.cfg())
			require.NoError(t, err)

			x, _, _ := simulated(t, people, items, K, 21)
			x = withMissing(x, [2]int{0, 1})
			target := newPosterior(j, x)

			point := randomPoint(j, prob.NewRand(8))
			grad := make([]float64, j.Dim())
			lp := target.LogDensity(point, grad)
			require.False(t, math.IsNaN(lp) || math.IsInf(lp, 0))

			const h = 1e-6
			for k := range point {
				orig := point[k]
				point[k] = orig + h
				up := target.LogDensity(point, nil)
				point[k] = orig - h
				down := target.LogDensity(point, nil)
				point[k] = orig
				numeric := (up - down) / (2 * h)
				assert.InDelta(t, numeric, grad[k], 1e-4*math.Max(1, math.Abs(numeric)), "coordinate %d", k)
			}
		})
	}
}

func TestUnconstrainedPosteriorGradient(t *testing.T) {
	shape := Shape{People: 3, Items: 2, Dims: 1, Categories: 3}
	j, err := NewJoint(shape, DefaultConfig())
	require.NoError(t, err)
	x, _, _ := simulated(t, 3, 2, 3, 13)
	u := prob.NewUnconstrained(newPosterior(j, x))

	z := make([]float64, j.Dim())
	prob.Unconstrain(j.Blocks(), randomPoint(j, prob.NewRand(3)), z)
	grad := make([]float64, j.Dim())
	u.LogDensity(z, grad)

	const h = 1e-6
	for k := range z {
		orig := z[k]
		z[k] = orig + h
		up := u.LogDensity(z, nil)
		z[k] = orig - h
		down := u.LogDensity(z, nil)
		z[k] = orig
		numeric := (up - down) / (2 * h)
		assert.InDelta(t, numeric, grad[k], 1e-4*math.Max(1, math.Abs(numeric)), "coordinate %d", k)
	}
}

func TestLogLikelihoodValidatesInput(t *testing.T) {
	j, err := NewJoint(Shape{People: 2, Items: 2, Dims: 1, Categories: 3}, DefaultConfig())
	require.NoError(t, err)
	p := j.View(randomPoint(j, prob.NewRand(1)))

	wrongShape := &ResponseMatrix{People: 3, Items: 2, Categories: 3, Codes: make([]int, 6)}
	_, err = j.LogLikelihood(wrongShape, p)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	outOfRange := &ResponseMatrix{People: 2, Items: 2, Categories: 3, Codes: []int{0, 1, 2, 3}}
	_, err = j.LogLikelihood(outOfRange, p)
	assert.ErrorIs(t, err, ErrInvalidResponse)

	ok := &ResponseMatrix{People: 2, Items: 2, Categories: 3, Codes: []int{0, 1, 2, Missing}}
	short := *p
	short.Abilities = p.Abilities[:1]
	_, err = j.LogLikelihood(ok, &short)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	total, err := j.LogJoint(ok, p)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(total))
}
