package vi

import (
	"math"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
)

// Surrogate is a mean-field approximate posterior: an independent Normal
// per unconstrained coordinate, pushed through each block's bijector.
// The trainable state is Loc and Rho, with scale softplus(Rho).
type Surrogate struct {
	blocks []prob.Block
	theta  []float64 // Loc followed by Rho
	Loc    []float64
	Rho    []float64
}

// NewSurrogate centers the surrogate on the constrained point init.
func NewSurrogate(blocks []prob.Block, init []float64, initScale float64) *Surrogate {
	n := len(init)
	theta := make([]float64, 2*n)
	s := &Surrogate{blocks: blocks, theta: theta, Loc: theta[:n:n], Rho: theta[n:]}
	prob.Unconstrain(blocks, init, s.Loc)
	rho := prob.SoftplusInverse(initScale)
	for i := range s.Rho {
		s.Rho[i] = rho
	}
	return s
}

func (s *Surrogate) Dim() int { return len(s.Loc) }

func (s *Surrogate) Blocks() []prob.Block { return s.blocks }

// Scale returns the unconstrained standard deviation of coordinate i.
func (s *Surrogate) Scale(i int) float64 { return prob.Softplus(s.Rho[i]) }

// draw fills eps with standard normals, z with the unconstrained sample and
// x with its constrained image.
func (s *Surrogate) draw(rng *rand.Rand, eps, z, x []float64) {
	for i := range z {
		eps[i] = rng.NormFloat64()
		z[i] = s.Loc[i] + s.Scale(i)*eps[i]
	}
	if x != nil {
		prob.Constrain(s.blocks, z, x)
	}
}

// Sample returns one constrained draw.
func (s *Surrogate) Sample(rng *rand.Rand) []float64 {
	n := s.Dim()
	eps, z, x := make([]float64, n), make([]float64, n), make([]float64, n)
	s.draw(rng, eps, z, x)
	return x
}

// Moments estimates the constrained-space mean and standard deviation of
// every coordinate from n draws.
func (s *Surrogate) Moments(rng *rand.Rand, n int) (mean, sd []float64) {
	dim := s.Dim()
	eps, z, x := make([]float64, dim), make([]float64, dim), make([]float64, dim)
	mean = make([]float64, dim)
	m2 := make([]float64, dim)
	for k := 1; k <= n; k++ {
		s.draw(rng, eps, z, x)
		for i, v := range x {
			delta := v - mean[i]
			mean[i] += delta / float64(k)
			m2[i] += delta * (v - mean[i])
		}
	}
	sd = make([]float64, dim)
	for i := range sd {
		sd[i] = math.Sqrt(m2[i] / float64(n))
	}
	return mean, sd
}

// entropy of the unconstrained Gaussian.
func (s *Surrogate) entropy() float64 {
	h := 0.5 * float64(s.Dim()) * (1 + math.Log(2*math.Pi))
	for i := range s.Rho {
		h += math.Log(s.Scale(i))
	}
	return h
}
