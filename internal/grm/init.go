package grm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// InitialParams seeds every latent variable from response summaries:
// abilities from standardized mean item scores, thresholds from each item's
// marginal cumulative proportions, unit discriminations and scales.
func (j *Joint) InitialParams(x *ResponseMatrix) (*Params, error) {
	if err := j.checkData(x); err != nil {
		return nil, err
	}
	if need := j.cfg.MinCompleteRows; need > 0 {
		if have := x.CompleteRows(); have < need {
			return nil, fmt.Errorf("%w: %d complete rows, need %d", ErrInsufficientData, have, need)
		}
	}
	s := j.shape
	p := j.View(make([]float64, j.dim))

	means := make([]float64, s.People)
	for n := 0; n < s.People; n++ {
		var sum, count float64
		for _, c := range x.Row(n) {
			if c >= 0 {
				sum += float64(c)
				count++
			}
		}
		if count > 0 {
			means[n] = sum / count
		} else {
			means[n] = math.NaN()
		}
	}
	observed := make([]float64, 0, s.People)
	for _, m := range means {
		if !math.IsNaN(m) {
			observed = append(observed, m)
		}
	}
	mu, sd := 0.0, 1.0
	if len(observed) > 1 {
		mu, sd = stat.PopMeanStdDev(observed, nil)
		if !(sd > 0) {
			sd = 1
		}
	}
	for n, m := range means {
		z := 0.0
		if !math.IsNaN(m) {
			z = (m - mu) / sd
		}
		p.Abilities[n*s.Dims] = z
	}

	levels := s.Levels()
	for i := 0; i < s.Items; i++ {
		cuts := itemThresholds(x, i, levels)
		for d := 0; d < s.Dims; d++ {
			k := d*s.Items + i
			p.Difficulties0[k] = cuts[0]
			p.Mu[k] = cuts[0]
			p.Discriminations[k] = 1
			for m := 1; m < levels; m++ {
				p.DDifficulties[k*(levels-1)+m-1] = math.Max(cuts[m]-cuts[m-1], 0.05)
			}
		}
	}
	fill(p.Eta, 1)
	fill(p.Xi, 1)
	fill(p.EtaAux, 1)
	fill(p.XiAux, 1)
	return p, nil
}

// itemThresholds places threshold j at -logit(P(X > j)), clamping
// proportions so empty categories stay finite.
func itemThresholds(x *ResponseMatrix, item, levels int) []float64 {
	counts := make([]float64, levels+1)
	var total float64
	for n := 0; n < x.People; n++ {
		if c := x.At(n, item); c >= 0 {
			counts[c]++
			total++
		}
	}
	cuts := make([]float64, levels)
	above := total
	for j := 0; j < levels; j++ {
		above -= counts[j]
		pr := 0.5
		if total > 0 {
			pr = math.Min(math.Max(above/total, 0.01), 0.99)
		}
		cuts[j] = -math.Log(pr / (1 - pr))
	}
	return cuts
}

func fill(xs []float64, v float64) {
	for i := range xs {
		xs[i] = v
	}
}
