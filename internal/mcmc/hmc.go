package mcmc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidConfig = errors.New("mcmc: invalid config")
	ErrInvalidInit   = errors.New("mcmc: initial state has non-finite log density")
)

// maxEnergyError marks a leapfrog trajectory as divergent.
const maxEnergyError = 1000

// Config controls a Hamiltonian Monte Carlo run.
type Config struct {
	StepSize      float64 `yaml:"step_size"`
	LeapfrogSteps int     `yaml:"leapfrog_steps"`
	// NumSteps is the total number of transitions, burn-in included.
	NumSteps int `yaml:"num_steps"`
	// Burnin transitions are discarded from the result.
	Burnin       int     `yaml:"burnin"`
	TargetAccept float64 `yaml:"target_accept"`
	// Adapt tunes the step size by dual averaging during burn-in.
	Adapt    bool `yaml:"adapt"`
	LogEvery int  `yaml:"log_every"`
}

func DefaultConfig() Config {
	return Config{
		StepSize:      1e-2,
		LeapfrogSteps: 10,
		NumSteps:      1000,
		Burnin:        500,
		TargetAccept:  0.65,
		Adapt:         true,
		LogEvery:      100,
	}
}

func (c Config) Validate() error {
	switch {
	case !(c.StepSize > 0):
		return fmt.Errorf("%w: step size must be positive, got %v", ErrInvalidConfig, c.StepSize)
	case c.LeapfrogSteps < 1:
		return fmt.Errorf("%w: leapfrog steps must be positive, got %d", ErrInvalidConfig, c.LeapfrogSteps)
	case c.Burnin < 0 || c.Burnin >= c.NumSteps:
		return fmt.Errorf("%w: burn-in %d must be in [0, %d)", ErrInvalidConfig, c.Burnin, c.NumSteps)
	case c.TargetAccept <= 0 || c.TargetAccept >= 1:
		return fmt.Errorf("%w: target acceptance must be in (0, 1), got %v", ErrInvalidConfig, c.TargetAccept)
	}
	return nil
}

// Result holds the retained post-burn-in draws in constrained coordinates.
type Result struct {
	Samples     [][]float64
	LogDensity  []float64
	AcceptRate  float64
	StepSize    float64
	Divergences int
}

// Moments returns the per-coordinate sample mean and population standard
// deviation of the retained draws.
func (r *Result) Moments() (mean, sd []float64) {
	if len(r.Samples) == 0 {
		return nil, nil
	}
	dim := len(r.Samples[0])
	mean = make([]float64, dim)
	sd = make([]float64, dim)
	col := make([]float64, len(r.Samples))
	for i := 0; i < dim; i++ {
		for s, x := range r.Samples {
			col[s] = x[i]
		}
		mean[i], sd[i] = stat.PopMeanStdDev(col, nil)
	}
	return mean, sd
}

// Sample runs HMC on target in unconstrained coordinates starting from the
// constrained point init.
func Sample(ctx context.Context, target prob.Target, init []float64, cfg Config, rng *rand.Rand, logger *slog.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(init) != target.Dim() {
		return nil, fmt.Errorf("%w: init has %d values, target has %d", ErrInvalidConfig, len(init), target.Dim())
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	u := prob.NewUnconstrained(target)
	blocks := u.Blocks()
	n := u.Dim()

	z := make([]float64, n)
	prob.Unconstrain(blocks, init, z)
	grad := make([]float64, n)
	lp := u.LogDensity(z, grad)
	if !finite(lp) || !prob.AllFinite(grad) {
		return nil, ErrInvalidInit
	}

	var (
		zNew    = make([]float64, n)
		gNew    = make([]float64, n)
		p       = make([]float64, n)
		eps     = cfg.StepSize
		da      = newDualAveraging(cfg.StepSize, cfg.TargetAccept)
		accepts int
		res     = &Result{Samples: make([][]float64, 0, cfg.NumSteps-cfg.Burnin)}
	)
	for step := 0; step < cfg.NumSteps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for i := range p {
			p[i] = rng.NormFloat64()
		}
		h0 := -lp + 0.5*dot(p, p)
		copy(zNew, z)
		copy(gNew, grad)
		lpNew := leapfrog(u, zNew, p, gNew, eps, cfg.LeapfrogSteps)
		h1 := -lpNew + 0.5*dot(p, p)

		logAccept := math.Min(0, h0-h1)
		divergent := !finite(h1) || h1-h0 > maxEnergyError
		if divergent {
			logAccept = math.Inf(-1)
			res.Divergences++
		}
		if math.Log(rng.Float64()) < logAccept {
			z, zNew = zNew, z
			grad, gNew = gNew, grad
			lp = lpNew
			if step >= cfg.Burnin {
				accepts++
			}
		}

		if step < cfg.Burnin {
			if cfg.Adapt {
				eps = da.update(math.Exp(logAccept))
				if step == cfg.Burnin-1 {
					eps = da.final()
				}
			}
		} else {
			x := make([]float64, n)
			prob.Constrain(blocks, z, x)
			res.Samples = append(res.Samples, x)
			res.LogDensity = append(res.LogDensity, lp)
		}
		if cfg.LogEvery > 0 && step%cfg.LogEvery == 0 {
			logger.Debug("hmc step", "step", step, "log_density", lp, "step_size", eps)
		}
	}
	res.StepSize = eps
	res.AcceptRate = float64(accepts) / float64(cfg.NumSteps-cfg.Burnin)
	logger.Info("hmc finished", "draws", len(res.Samples), "accept_rate", res.AcceptRate,
		"step_size", eps, "divergences", res.Divergences)
	return res, nil
}

// leapfrog integrates Hamiltonian dynamics in place on z and p, with g
// holding the gradient at z on entry and exit. It returns log p(z).
func leapfrog(u *prob.Unconstrained, z, p, g []float64, eps float64, steps int) float64 {
	var lp float64
	for l := 0; l < steps; l++ {
		for i := range p {
			p[i] += 0.5 * eps * g[i]
		}
		for i := range z {
			z[i] += eps * p[i]
		}
		lp = u.LogDensity(z, g)
		if !finite(lp) || !prob.AllFinite(g) {
			return math.Inf(-1)
		}
		for i := range p {
			p[i] += 0.5 * eps * g[i]
		}
	}
	return lp
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
