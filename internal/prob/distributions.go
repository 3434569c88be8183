package prob

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	logSqrt2OverPi = -0.22579135264472741 // 0.5*log(2/pi)
	log2OverPi     = -0.45158270528945482 // log(2/pi)
)

// Normal is the Gaussian distribution.
type Normal struct {
	Mu, Sigma float64
}

func (n Normal) LogProb(x float64) float64 {
	return distuv.Normal{Mu: n.Mu, Sigma: n.Sigma}.LogProb(x)
}

// ScoreInput returns d/dx log p(x).
func (n Normal) ScoreInput(x float64) float64 {
	return -(x - n.Mu) / (n.Sigma * n.Sigma)
}

// ScoreMu returns d/dmu log p(x).
func (n Normal) ScoreMu(x float64) float64 {
	return (x - n.Mu) / (n.Sigma * n.Sigma)
}

func (n Normal) Rand(rng *rand.Rand) float64 {
	return distuv.Normal{Mu: n.Mu, Sigma: n.Sigma, Src: rng}.Rand()
}

// HalfNormal is |N(0, Sigma)| on [0, inf).
type HalfNormal struct {
	Sigma float64
}

func (h HalfNormal) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	v := h.Sigma * h.Sigma
	return logSqrt2OverPi - 0.5*math.Log(v) - x*x/(2*v)
}

func (h HalfNormal) ScoreInput(x float64) float64 {
	return -x / (h.Sigma * h.Sigma)
}

// ScoreVariance returns d/dv log p(x) where v = Sigma^2.
func (h HalfNormal) ScoreVariance(x float64) float64 {
	v := h.Sigma * h.Sigma
	return -0.5/v + x*x/(2*v*v)
}

func (h HalfNormal) Rand(rng *rand.Rand) float64 {
	return math.Abs(rng.NormFloat64() * h.Sigma)
}

// HalfCauchy is the Cauchy distribution located at zero folded onto [0, inf).
type HalfCauchy struct {
	Scale float64
}

func (h HalfCauchy) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	z := x / h.Scale
	return log2OverPi - math.Log(h.Scale) - math.Log1p(z*z)
}

func (h HalfCauchy) ScoreInput(x float64) float64 {
	return -2 * x / (h.Scale*h.Scale + x*x)
}

func (h HalfCauchy) Rand(rng *rand.Rand) float64 {
	return math.Abs(h.Scale * math.Tan(math.Pi*(rng.Float64()-0.5)))
}

// InverseGamma has density b^a/Gamma(a) x^(-a-1) exp(-b/x).
type InverseGamma struct {
	Alpha, Beta float64
}

func (g InverseGamma) LogProb(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return distuv.InverseGamma{Alpha: g.Alpha, Beta: g.Beta}.LogProb(x)
}

func (g InverseGamma) ScoreInput(x float64) float64 {
	return -(g.Alpha+1)/x + g.Beta/(x*x)
}

// ScoreBeta returns d/dbeta log p(x).
func (g InverseGamma) ScoreBeta(x float64) float64 {
	return g.Alpha/g.Beta - 1/x
}

func (g InverseGamma) Rand(rng *rand.Rand) float64 {
	return distuv.InverseGamma{Alpha: g.Alpha, Beta: g.Beta, Src: rng}.Rand()
}

// CategoricalLogProb returns log probs[k].
func CategoricalLogProb(probs []float64, k int) float64 {
	if k < 0 || k >= len(probs) {
		return math.Inf(-1)
	}
	return math.Log(probs[k])
}

// SampleCategorical draws an index with probability proportional to probs.
func SampleCategorical(probs []float64, rng *rand.Rand) int {
	return int(distuv.NewCategorical(probs, rng).Rand())
}
