package mcmc

import "math"

// dualAveraging tunes the leapfrog step size toward a target acceptance
// probability (Hoffman & Gelman 2014, section 3.2.1).
type dualAveraging struct {
	mu, target         float64
	hBar, logEps, lBar float64
	m                  int
}

const (
	daGamma = 0.05
	daT0    = 10
	daKappa = 0.75
)

func newDualAveraging(eps0, target float64) *dualAveraging {
	return &dualAveraging{mu: math.Log(10 * eps0), target: target, logEps: math.Log(eps0)}
}

// update records one acceptance probability and returns the next step size.
func (d *dualAveraging) update(accept float64) float64 {
	if math.IsNaN(accept) {
		accept = 0
	}
	d.m++
	m := float64(d.m)
	w := 1 / (m + daT0)
	d.hBar = (1-w)*d.hBar + w*(d.target-accept)
	d.logEps = d.mu - math.Sqrt(m)/daGamma*d.hBar
	k := math.Pow(m, -daKappa)
	d.lBar = k*d.logEps + (1-k)*d.lBar
	return math.Exp(d.logEps)
}

// final returns the averaged step size used after adaptation.
func (d *dualAveraging) final() float64 { return math.Exp(d.lBar) }
