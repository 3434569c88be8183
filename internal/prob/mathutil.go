package prob

import "math"

// Sigmoid returns 1/(1+exp(-x)) without overflowing for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Softplus returns log(1+exp(x)).
func Softplus(x float64) float64 {
	switch {
	case x > 30:
		return x
	case x < -30:
		return math.Exp(x)
	}
	return math.Log1p(math.Exp(x))
}

// SoftplusInverse returns log(exp(y)-1) for y > 0.
func SoftplusInverse(y float64) float64 {
	switch {
	case y <= 0:
		return math.Inf(-1)
	case y > 30:
		return y
	case y < 1e-8:
		return math.Log(y)
	}
	return math.Log(math.Expm1(y))
}

// AllFinite reports whether every value is neither NaN nor infinite.
func AllFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
