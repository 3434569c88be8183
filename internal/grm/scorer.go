package grm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultDraws is the number of proposal draws a scorer shares across
// respondents unless told otherwise.
const DefaultDraws = 500

// ItemParams are calibrated item parameters held fixed while scoring.
type ItemParams struct {
	Discriminations *mat.Dense // dims × items
	Cutpoints       Cutpoints
	Weighting       Weighting
}

func (ip ItemParams) shape() (dims, items int, err error) {
	if ip.Discriminations == nil {
		return 0, 0, fmt.Errorf("%w: missing discriminations", ErrShapeMismatch)
	}
	dims, items = ip.Discriminations.Dims()
	if ip.Cutpoints.Dims != dims || ip.Cutpoints.Items != items || ip.Cutpoints.Levels < 1 {
		return 0, 0, fmt.Errorf("%w: discriminations %d×%d, cutpoints %d×%d×%d",
			ErrShapeMismatch, dims, items, ip.Cutpoints.Dims, ip.Cutpoints.Items, ip.Cutpoints.Levels)
	}
	return dims, items, nil
}

// Scorer estimates trait posteriors for new respondents by self-normalized
// importance sampling against a fixed Normal proposal.
type Scorer struct {
	items      ItemParams
	dims       int
	numItems   int
	categories int
	mean, sd   []float64
	draws      int
}

// Scores holds per-respondent posterior summaries and the raw importance
// sampling state.
type Scores struct {
	Mean       *mat.Dense // people × dims
	SD         *mat.Dense // people × dims
	LogWeights *mat.Dense // people × draws, unnormalized
	Samples    *mat.Dense // draws × dims
	// ESS is the effective sample size of each respondent's weights.
	ESS []float64
}

// NewScorer returns a scorer drawing from N(mean, sd²) per dimension.
func NewScorer(items ItemParams, mean, sd []float64, draws int) (*Scorer, error) {
	dims, numItems, err := items.shape()
	if err != nil {
		return nil, err
	}
	if len(mean) != dims || len(sd) != dims {
		return nil, fmt.Errorf("%w: proposal has %d means and %d sds for %d dims", ErrShapeMismatch, len(mean), len(sd), dims)
	}
	for d := range sd {
		if !(sd[d] > 0) || math.IsInf(sd[d], 0) || math.IsNaN(mean[d]) || math.IsInf(mean[d], 0) {
			return nil, fmt.Errorf("grm: invalid proposal N(%v, %v) on dimension %d", mean[d], sd[d], d)
		}
	}
	if draws < 1 {
		draws = DefaultDraws
	}
	if items.Weighting == nil {
		items.Weighting = PowerWeighting{Exponent: 1}
	}
	return &Scorer{
		items:      items,
		dims:       dims,
		numItems:   numItems,
		categories: items.Cutpoints.Levels + 1,
		mean:       append([]float64(nil), mean...),
		sd:         append([]float64(nil), sd...),
		draws:      draws,
	}, nil
}

// ProposalFromTraits fits a per-dimension Normal to calibrated trait
// posteriors (people × dims means and sds) by the law of total variance.
func ProposalFromTraits(means, sds *mat.Dense) (mean, sd []float64) {
	people, dims := means.Dims()
	mean = make([]float64, dims)
	sd = make([]float64, dims)
	col := make([]float64, people)
	for d := 0; d < dims; d++ {
		mat.Col(col, d, means)
		m, v := stat.PopMeanVariance(col, nil)
		var within float64
		if sds != nil {
			mat.Col(col, d, sds)
			for _, s := range col {
				within += s * s
			}
			within /= float64(people)
		}
		mean[d] = m
		sd[d] = math.Sqrt(v + within)
		if !(sd[d] > 0) {
			sd[d] = 1
		}
	}
	return mean, sd
}

// Score estimates every respondent's trait posterior under a standard
// Normal trait prior. All respondents share the same proposal draws.
func (s *Scorer) Score(x *ResponseMatrix, rng *rand.Rand) (*Scores, error) {
	if err := s.check(x); err != nil {
		return nil, err
	}
	S, D, I, K := s.draws, s.dims, s.numItems, s.categories

	samples := mat.NewDense(S, D, nil)
	base := make([]float64, S)
	for k := 0; k < S; k++ {
		for d := 0; d < D; d++ {
			q := prob.Normal{Mu: s.mean[d], Sigma: s.sd[d]}
			t := q.Rand(rng)
			samples.Set(k, d, t)
			base[k] += prob.Normal{Mu: 0, Sigma: 1}.LogProb(t) - q.LogProb(t)
		}
	}

	// table[(k*I+i)*K+c] = log P(X_i = c | theta_k)
	kern := newKernel(Shape{Items: I, Dims: D, Categories: K}, s.items.Weighting)
	alpha := denseData(s.items.Discriminations)
	table := make([]float64, S*I*K)
	probs := make([]float64, K)
	for k := 0; k < S; k++ {
		theta := samples.RawRowView(k)
		for i := 0; i < I; i++ {
			kern.probs(theta, alpha, s.items.Cutpoints, i, probs)
			row := table[(k*I+i)*K : (k*I+i+1)*K]
			for c, p := range probs {
				row[c] = math.Log(math.Max(p, probFloor))
			}
		}
	}

	out := &Scores{
		Mean:       mat.NewDense(x.People, D, nil),
		SD:         mat.NewDense(x.People, D, nil),
		LogWeights: mat.NewDense(x.People, S, nil),
		Samples:    samples,
		ESS:        make([]float64, x.People),
	}
	w := make([]float64, S)
	for n := 0; n < x.People; n++ {
		lw := out.LogWeights.RawRowView(n)
		copy(lw, base)
		for i, c := range x.Row(n) {
			if c < 0 {
				continue
			}
			for k := 0; k < S; k++ {
				lw[k] += table[(k*I+i)*K+c]
			}
		}
		norm := floats.LogSumExp(lw)
		for k := range w {
			w[k] = math.Exp(lw[k] - norm)
		}
		out.ESS[n] = 1 / floats.Dot(w, w)
		for d := 0; d < D; d++ {
			var m1, m2 float64
			for k, wk := range w {
				t := samples.At(k, d)
				m1 += wk * t
				m2 += wk * t * t
			}
			out.Mean.Set(n, d, m1)
			out.SD.Set(n, d, math.Sqrt(math.Max(m2-m1*m1, 0)))
		}
	}
	return out, nil
}

// HeldOutLoss is the mean negative log-likelihood per observed response of
// x evaluated at the scored trait means. It is zero when nothing is observed.
func (s *Scorer) HeldOutLoss(x *ResponseMatrix, scores *Scores) (float64, error) {
	if err := s.check(x); err != nil {
		return 0, err
	}
	if r, c := scores.Mean.Dims(); r != x.People || c != s.dims {
		return 0, fmt.Errorf("%w: scores are %d×%d for %d respondents and %d dims", ErrShapeMismatch, r, c, x.People, s.dims)
	}
	kern := newKernel(Shape{Items: s.numItems, Dims: s.dims, Categories: s.categories}, s.items.Weighting)
	alpha := denseData(s.items.Discriminations)
	var nll float64
	var count int
	for n := 0; n < x.People; n++ {
		theta := scores.Mean.RawRowView(n)
		for i, c := range x.Row(n) {
			if c < 0 {
				continue
			}
			nll -= kern.logProb(theta, alpha, s.items.Cutpoints, i, c, nil, nil, nil)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return nll / float64(count), nil
}

func (s *Scorer) check(x *ResponseMatrix) error {
	if x.Items != s.numItems {
		return fmt.Errorf("%w: responses have %d items, scorer has %d", ErrShapeMismatch, x.Items, s.numItems)
	}
	if x.Categories > s.categories {
		return fmt.Errorf("%w: responses have %d categories, scorer has %d", ErrInvalidResponse, x.Categories, s.categories)
	}
	return x.Validate()
}
