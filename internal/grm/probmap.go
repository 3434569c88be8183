package grm

import (
	"fmt"
	"math"

	"github.com/soaringjerry/synapirt/internal/prob"
	"gonum.org/v1/gonum/mat"
)

// probFloor bounds category probabilities away from zero before taking logs.
const probFloor = 1e-30

// Weighting maps a discrimination to its unnormalized mixture weight when
// several latent dimensions share an item.
type Weighting interface {
	Name() string
	// weight returns f(a) and df/da.
	weight(a float64) (float64, float64)
}

// ParseWeighting builds a Weighting from its name; exponent applies to
// "power" only.
func ParseWeighting(name string, exponent float64) (Weighting, error) {
	switch name {
	case "linear":
		return LinearWeighting{}, nil
	case "", "power":
		if exponent == 0 {
			exponent = 1
		}
		if exponent < 0 {
			return nil, fmt.Errorf("weight exponent must be positive, got %v", exponent)
		}
		return PowerWeighting{Exponent: exponent}, nil
	}
	return nil, fmt.Errorf("unknown weighting %q", name)
}

// LinearWeighting weights dimensions by discrimination: a_d / sum(a).
type LinearWeighting struct{}

func (LinearWeighting) Name() string { return "linear" }

func (LinearWeighting) weight(a float64) (float64, float64) {
	if a <= 0 {
		return 0, 0
	}
	return a, 1
}

// PowerWeighting weights dimensions by |a_d|^Exponent / sum(|a|^Exponent).
type PowerWeighting struct {
	Exponent float64
}

func (PowerWeighting) Name() string { return "power" }

func (w PowerWeighting) weight(a float64) (float64, float64) {
	if a <= 0 {
		return 0, 0
	}
	if w.Exponent == 1 {
		return a, 1
	}
	f := math.Pow(a, w.Exponent)
	return f, w.Exponent * f / a
}

// kernel evaluates the graded response link for one (respondent, item) cell.
// It owns scratch buffers and is not safe for concurrent use.
type kernel struct {
	dims, items, categories int
	weighting               Weighting
	cum                     []float64 // dims × (K+1)
	q                       []float64 // dims
	f, fp                   []float64 // dims
}

func newKernel(s Shape, w Weighting) *kernel {
	return &kernel{
		dims:       s.Dims,
		items:      s.Items,
		categories: s.Categories,
		weighting:  w,
		cum:        make([]float64, s.Dims*(s.Categories+1)),
		q:          make([]float64, s.Dims),
		f:          make([]float64, s.Dims),
		fp:         make([]float64, s.Dims),
	}
}

// cumulative fills P(X >= k | theta_d) for k = 0..K on every dimension.
func (k *kernel) cumulative(theta, alpha []float64, cut Cutpoints, item int) {
	K := k.categories
	for d := 0; d < k.dims; d++ {
		a := alpha[d*k.items+item]
		row := k.cum[d*(K+1) : (d+1)*(K+1)]
		row[0] = 1
		beta := cut.Item(d, item)
		for j, b := range beta {
			row[j+1] = prob.Sigmoid(-a * (b - theta[d]))
		}
		row[K] = 0
	}
}

// weights fills normalized mixture weights into k.f and returns the
// normalizer. With one dimension the weight is 1.
func (k *kernel) weights(alpha []float64, item int) float64 {
	if k.dims == 1 {
		k.f[0], k.fp[0] = 1, 0
		return 1
	}
	var total float64
	for d := 0; d < k.dims; d++ {
		k.f[d], k.fp[d] = k.weighting.weight(alpha[d*k.items+item])
		total += k.f[d]
	}
	if total <= 0 {
		for d := range k.f {
			k.f[d], k.fp[d] = 1/float64(k.dims), 0
		}
		return 0
	}
	for d := range k.f {
		k.f[d] /= total
	}
	return total
}

// probs writes the K category probabilities of one cell into out.
func (k *kernel) probs(theta, alpha []float64, cut Cutpoints, item int, out []float64) {
	K := k.categories
	k.cumulative(theta, alpha, cut, item)
	k.weights(alpha, item)
	for c := range out {
		out[c] = 0
	}
	for d := 0; d < k.dims; d++ {
		row := k.cum[d*(K+1) : (d+1)*(K+1)]
		for c := 0; c < K; c++ {
			out[c] += k.f[d] * (row[c] - row[c+1])
		}
	}
}

// logProb returns log P(X = cat) for one cell. When gTheta is non-nil the
// partial derivatives are accumulated into gTheta (dims), gAlpha
// (dims×items) and gCut (dims×items×levels).
func (k *kernel) logProb(theta, alpha []float64, cut Cutpoints, item, cat int, gTheta, gAlpha, gCut []float64) float64 {
	K := k.categories
	k.cumulative(theta, alpha, cut, item)
	total := k.weights(alpha, item)
	var p float64
	for d := 0; d < k.dims; d++ {
		row := k.cum[d*(K+1) : (d+1)*(K+1)]
		k.q[d] = row[cat] - row[cat+1]
		p += k.f[d] * k.q[d]
	}
	if !(p > probFloor) {
		return math.Log(probFloor)
	}
	if gTheta == nil {
		return math.Log(p)
	}
	g := 1 / p
	levels := K - 1
	for d := 0; d < k.dims; d++ {
		row := k.cum[d*(K+1) : (d+1)*(K+1)]
		a := alpha[d*k.items+item]
		gq := g * k.f[d]
		base := (d*k.items + item) * levels
		// q = cum[cat] - cum[cat+1]; d cum/ds = -cum(1-cum) with s = a(beta-theta).
		if cat >= 1 {
			c := row[cat]
			k.applyLink(d, item, cat-1, -gq*c*(1-c), a, theta, cut, gTheta, gAlpha, gCut, base)
		}
		if cat+1 <= levels {
			c := row[cat+1]
			k.applyLink(d, item, cat, gq*c*(1-c), a, theta, cut, gTheta, gAlpha, gCut, base)
		}
	}
	if k.dims > 1 && total > 0 {
		for e := 0; e < k.dims; e++ {
			gAlpha[e*k.items+item] += k.fp[e] / total * g * (k.q[e] - p)
		}
	}
	return math.Log(p)
}

func (k *kernel) applyLink(d, item, j int, gs, a float64, theta []float64, cut Cutpoints, gTheta, gAlpha, gCut []float64, base int) {
	b := cut.Data[base+j]
	gAlpha[d*k.items+item] += gs * (b - theta[d])
	gCut[base+j] += gs * a
	gTheta[d] -= gs * a
}

// ResponseProbs evaluates the graded response map for every respondent and
// item. abilities is people×dims and discriminations dims×items. The
// result is people×items×K, row-major, each K-block summing to one.
func ResponseProbs(abilities, discriminations *mat.Dense, cut Cutpoints, w Weighting) ([]float64, error) {
	people, dims := abilities.Dims()
	dd, items := discriminations.Dims()
	if dd != dims || cut.Dims != dims || cut.Items != items {
		return nil, fmt.Errorf("%w: abilities %d×%d, discriminations %d×%d, cutpoints %d×%d",
			ErrShapeMismatch, people, dims, dd, items, cut.Dims, cut.Items)
	}
	if w == nil {
		w = PowerWeighting{Exponent: 1}
	}
	K := cut.Levels + 1
	k := newKernel(Shape{People: people, Items: items, Dims: dims, Categories: K}, w)
	alpha := denseData(discriminations)
	out := make([]float64, people*items*K)
	theta := make([]float64, dims)
	for n := 0; n < people; n++ {
		mat.Row(theta, n, abilities)
		for i := 0; i < items; i++ {
			k.probs(theta, alpha, cut, i, out[(n*items+i)*K:(n*items+i+1)*K])
		}
	}
	return out, nil
}

// denseData returns the row-major contents of m.
func denseData(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
