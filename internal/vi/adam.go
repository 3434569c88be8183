package vi

import "math"

// adam is the Adam optimizer over a flat parameter vector.
type adam struct {
	beta1, beta2, eps float64
	m, v              []float64
	t                 int
}

func newAdam(n int) *adam {
	return &adam{beta1: 0.9, beta2: 0.999, eps: 1e-7, m: make([]float64, n), v: make([]float64, n)}
}

// step moves params against grads (a loss gradient) with learning rate lr.
func (a *adam) step(params, grads []float64, lr float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, g := range grads {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

// learningRate is the staircase exponential decay schedule.
func learningRate(cfg Config, step int) float64 {
	return cfg.LearningRate * math.Pow(cfg.DecayRate, float64(step/cfg.DecaySteps))
}

// clipValue clamps every component of g to [-bound, bound].
func clipValue(g []float64, bound float64) {
	for i, v := range g {
		g[i] = math.Max(-bound, math.Min(bound, v))
	}
}
