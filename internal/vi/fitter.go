package vi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
)

// ErrDiverged reports a fit whose loss or gradient stayed non-finite.
var ErrDiverged = errors.New("vi: optimization diverged")

// Phase is the fitter's lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseSurrogateBuilt
	PhaseOptimizing
	PhaseConverged
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseSurrogateBuilt:
		return "surrogate-built"
	case PhaseOptimizing:
		return "optimizing"
	case PhaseConverged:
		return "converged"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Trace is the loss history of one Fit call.
type Trace struct {
	Loss    []float64
	Skipped int
}

// Final returns the last finite loss, or NaN.
func (t *Trace) Final() float64 {
	for i := len(t.Loss) - 1; i >= 0; i-- {
		if !math.IsNaN(t.Loss[i]) && !math.IsInf(t.Loss[i], 0) {
			return t.Loss[i]
		}
	}
	return math.NaN()
}

// Fitter maximizes the evidence lower bound of a Target with a mean-field
// surrogate. Steps run strictly in order; a Fitter is not safe for
// concurrent use.
type Fitter struct {
	target    *prob.Unconstrained
	surrogate *Surrogate
	phase     Phase
	logger    *slog.Logger
}

func NewFitter(target prob.Target, logger *slog.Logger) *Fitter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fitter{target: prob.NewUnconstrained(target), logger: logger}
}

func (f *Fitter) Phase() Phase { return f.phase }

// Surrogate returns the current surrogate, or nil before Build.
func (f *Fitter) Surrogate() *Surrogate { return f.surrogate }

// Build creates the surrogate centered on the constrained point init.
func (f *Fitter) Build(init []float64, initScale float64) error {
	if len(init) != f.target.Dim() {
		return fmt.Errorf("vi: init has %d values, target has %d", len(init), f.target.Dim())
	}
	if initScale <= 0 {
		return fmt.Errorf("vi: init scale must be positive, got %v", initScale)
	}
	s := NewSurrogate(f.target.Blocks(), init, initScale)
	if !prob.AllFinite(s.Loc) {
		return fmt.Errorf("vi: init point lies outside the support of a constrained block")
	}
	f.surrogate = s
	f.phase = PhaseSurrogateBuilt
	return nil
}

// Fit runs cfg.Steps optimization steps. It may be called again to keep
// optimizing with a new schedule; each call starts a fresh optimizer.
// If ctx is cancelled or the fit diverges, the surrogate keeps the state of
// the last completed step and the partial trace is returned with the error.
func (f *Fitter) Fit(ctx context.Context, cfg Config, rng *rand.Rand) (*Trace, error) {
	if f.surrogate == nil {
		return nil, fmt.Errorf("vi: fit called in phase %s", f.phase)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.phase = PhaseOptimizing
	s := f.surrogate
	n := s.Dim()
	opt := newAdam(2 * n)
	grad := make([]float64, 2*n)
	gLoc, gRho := grad[:n], grad[n:]
	eps, z, gz := make([]float64, n), make([]float64, n), make([]float64, n)
	trace := &Trace{Loss: make([]float64, 0, cfg.Steps)}
	nonFinite := 0

	for step := 0; step < cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return trace, err
		}
		for i := range grad {
			grad[i] = 0
		}
		var loss float64
		finite := true
		for k := 0; k < cfg.SampleSize; k++ {
			s.draw(rng, eps, z, nil)
			lp := f.target.LogDensity(z, gz)
			if math.IsNaN(lp) || math.IsInf(lp, 0) || !prob.AllFinite(gz) {
				finite = false
				loss = math.NaN()
				break
			}
			clipValue(gz, cfg.ClipTarget)
			loss -= lp
			for i, g := range gz {
				gLoc[i] -= g
				gRho[i] -= g * eps[i] * prob.Sigmoid(s.Rho[i])
			}
		}
		if finite {
			inv := 1 / float64(cfg.SampleSize)
			loss = loss*inv - s.entropy()
			for i := range grad {
				grad[i] *= inv
			}
			// d/drho of -log softplus(rho)
			for i := range gRho {
				gRho[i] -= prob.Sigmoid(s.Rho[i]) / s.Scale(i)
			}
			finite = !math.IsNaN(loss) && !math.IsInf(loss, 0) && prob.AllFinite(grad)
		}
		trace.Loss = append(trace.Loss, loss)
		if !finite {
			trace.Skipped++
			nonFinite++
			if nonFinite >= cfg.MaxNonFinite {
				f.logger.Warn("variational fit diverged", "step", step, "consecutive_non_finite", nonFinite)
				return trace, fmt.Errorf("%w: %d consecutive non-finite steps ending at step %d", ErrDiverged, nonFinite, step)
			}
			continue
		}
		nonFinite = 0
		clipValue(grad, cfg.ClipValue)
		lr := learningRate(cfg, step)
		opt.step(s.theta, grad, lr)
		if cfg.LogEvery > 0 && step%cfg.LogEvery == 0 {
			f.logger.Debug("variational step", "step", step, "loss", loss, "learning_rate", lr)
		}
	}
	f.phase = PhaseConverged
	f.logger.Info("variational fit finished", "steps", cfg.Steps, "final_loss", trace.Final(), "skipped", trace.Skipped)
	return trace, nil
}
