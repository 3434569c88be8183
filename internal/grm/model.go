package grm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/mcmc"
	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/soaringjerry/synapirt/internal/vi"
	"gonum.org/v1/gonum/mat"
)

// Family identifies a supported response type.
type Family int

const (
	FamilyGraded Family = iota
	FamilyBinary
)

func (f Family) String() string {
	switch f {
	case FamilyGraded:
		return "graded"
	case FamilyBinary:
		return "binary"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily is the inverse of Family.String.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "", "graded":
		return FamilyGraded, nil
	case "binary":
		return FamilyBinary, nil
	}
	return 0, fmt.Errorf("unknown family %q", s)
}

// Calibration sources.
const (
	SourceVariational = "variational"
	SourceMCMC        = "mcmc"
)

// momentDraws is the surrogate sample size used to summarize a variational
// fit.
const momentDraws = 1000

// ResponseModel is implemented by *Graded and *Binary only.
type ResponseModel interface {
	Family() Family
	Joint() *Joint
	// LogLikelihood returns each respondent's log-likelihood of the
	// training responses under p.
	LogLikelihood(p *Params) ([]float64, error)
	FitVariational(ctx context.Context, cfg vi.Config, rng *rand.Rand) (*Calibration, error)
	FitMCMC(ctx context.Context, cfg mcmc.Config, rng *rand.Rand) (*Calibration, error)
	Score(x *ResponseMatrix, draws int, rng *rand.Rand) (*Scores, error)
	Calibration() *Calibration
	sealed()
}

// Graded is the graded response model over K ordered categories.
type Graded struct {
	cfg    Config
	data   *ResponseMatrix
	joint  *Joint
	target *posterior
	fitter *vi.Fitter
	logger *slog.Logger

	calibration *Calibration
	// mean is the latest posterior mean in constrained coordinates.
	mean []float64
}

// NewGraded validates x against cfg and builds the joint model. When
// cfg.Categories is 0, K comes from x.Categories, or failing that from the
// largest observed code plus one.
func NewGraded(cfg Config, x *ResponseMatrix, logger *slog.Logger) (*Graded, error) {
	return newGraded(FamilyGraded, cfg, x, logger)
}

func newGraded(family Family, cfg Config, x *ResponseMatrix, logger *slog.Logger) (*Graded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if x == nil {
		return nil, fmt.Errorf("%w: no responses", ErrShapeMismatch)
	}
	K := cfg.Categories
	if K == 0 {
		K = x.Categories
		if K == 0 {
			K = x.MaxCode() + 1
		}
		if x.MinCode() == 1 {
			logger.Warn("response codes start at 1; category 0 will be empty", "categories", K)
		}
	}
	if K < 2 {
		return nil, fmt.Errorf("%w: need at least 2 categories, have %d", ErrInvalidResponse, K)
	}
	cfg.Categories = K
	shape := Shape{People: x.People, Items: x.Items, Dims: cfg.Dimensions, Categories: K}
	joint, err := NewJoint(shape, cfg)
	if err != nil {
		return nil, err
	}
	if err := joint.checkData(x); err != nil {
		return nil, err
	}
	return &Graded{
		cfg:    cfg,
		data:   x,
		joint:  joint,
		target: newPosterior(joint, x),
		logger: logger.With("family", family.String(), "dims", cfg.Dimensions, "categories", K),
	}, nil
}

func (g *Graded) Family() Family { return FamilyGraded }

func (g *Graded) Joint() *Joint { return g.joint }

func (g *Graded) Config() Config { return g.cfg }

func (g *Graded) Calibration() *Calibration { return g.calibration }

func (g *Graded) sealed() {}

func (g *Graded) LogLikelihood(p *Params) ([]float64, error) {
	return g.joint.LogLikelihood(g.data, p)
}

// FitVariational runs one ADVI pass. The surrogate is built from the
// initialization heuristic on the first call and kept across calls, so a
// second pass with a smaller learning rate continues the first.
func (g *Graded) FitVariational(ctx context.Context, cfg vi.Config, rng *rand.Rand) (*Calibration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g.fitter == nil {
		init, err := g.initialPoint()
		if err != nil {
			return nil, err
		}
		f := vi.NewFitter(g.target, g.logger)
		if err := f.Build(init, cfg.InitScale); err != nil {
			return nil, err
		}
		g.fitter = f
	}
	trace, err := g.fitter.Fit(ctx, cfg, rng)
	if err != nil {
		if errors.Is(err, vi.ErrDiverged) {
			return nil, fmt.Errorf("%w: %w", ErrCalibrationFailed, err)
		}
		return nil, err
	}
	mean, sd := g.fitter.Surrogate().Moments(rng, momentDraws)
	return g.publish(SourceVariational, mean, sd, trace.Loss)
}

// FitMCMC samples the posterior with HMC starting from the latest posterior
// mean, or from the initialization heuristic when nothing is calibrated yet.
func (g *Graded) FitMCMC(ctx context.Context, cfg mcmc.Config, rng *rand.Rand) (*Calibration, error) {
	init := g.mean
	if init == nil {
		var err error
		if init, err = g.initialPoint(); err != nil {
			return nil, err
		}
	}
	res, err := mcmc.Sample(ctx, g.target, init, cfg, rng, g.logger)
	if err != nil {
		if errors.Is(err, mcmc.ErrInvalidInit) {
			return nil, fmt.Errorf("%w: %w", ErrCalibrationFailed, err)
		}
		return nil, err
	}
	mean, sd := res.Moments()
	loss := make([]float64, len(res.LogDensity))
	for k, lp := range res.LogDensity {
		loss[k] = -lp
	}
	g.logger.Info("mcmc calibration", "accept_rate", res.AcceptRate, "divergences", res.Divergences)
	return g.publish(SourceMCMC, mean, sd, loss)
}

// Score estimates trait posteriors for x under the current calibration.
func (g *Graded) Score(x *ResponseMatrix, draws int, rng *rand.Rand) (*Scores, error) {
	if g.calibration == nil {
		return nil, ErrNotCalibrated
	}
	s, err := g.calibration.Scorer(draws)
	if err != nil {
		return nil, err
	}
	return s.Score(x, rng)
}

func (g *Graded) initialPoint() ([]float64, error) {
	p, err := g.joint.InitialParams(g.data)
	if err != nil {
		return nil, err
	}
	return g.joint.Flatten(p)
}

// publish replaces the current calibration only when every summary is finite.
func (g *Graded) publish(source string, mean, sd, loss []float64) (*Calibration, error) {
	if !prob.AllFinite(mean) || !prob.AllFinite(sd) {
		return nil, fmt.Errorf("%w: %s posterior summary is not finite", ErrCalibrationFailed, source)
	}
	c, err := newCalibration(g.joint, source, mean, sd, loss)
	if err != nil {
		return nil, err
	}
	c.PersonIDs, c.ItemIDs = g.data.PersonIDs, g.data.ItemIDs
	g.calibration = c
	g.mean = mean
	return c, nil
}

// Binary is the graded model with two categories.
type Binary struct {
	*Graded
}

// NewBinary builds a two-category model; every observed code must be 0 or 1.
func NewBinary(cfg Config, x *ResponseMatrix, logger *slog.Logger) (*Binary, error) {
	if x != nil && x.MaxCode() > 1 {
		return nil, fmt.Errorf("%w: binary responses must be 0 or 1, found %d", ErrInvalidResponse, x.MaxCode())
	}
	cfg.Categories = 2
	g, err := newGraded(FamilyBinary, cfg, x, logger)
	if err != nil {
		return nil, err
	}
	return &Binary{Graded: g}, nil
}

func (b *Binary) Family() Family { return FamilyBinary }

// New builds the model for family.
func New(family Family, cfg Config, x *ResponseMatrix, logger *slog.Logger) (ResponseModel, error) {
	switch family {
	case FamilyGraded:
		return NewGraded(cfg, x, logger)
	case FamilyBinary:
		return NewBinary(cfg, x, logger)
	default:
		return nil, fmt.Errorf("grm: unsupported family %s", family)
	}
}

// Calibration is a read-only summary of one calibration pass.
type Calibration struct {
	Source string
	// Traits and TraitsSD are people × dims.
	Traits   *mat.Dense
	TraitsSD *mat.Dense
	// Discriminations, DiscriminationsSD and Difficulties0 are dims × items.
	Discriminations   *mat.Dense
	DiscriminationsSD *mat.Dense
	Difficulties0     *mat.Dense
	DDifficulties     []float64
	Cutpoints         Cutpoints
	Loss              []float64
	Weighting         Weighting
	PersonIDs         []string
	ItemIDs           []string
}

func newCalibration(j *Joint, source string, mean, sd, loss []float64) (*Calibration, error) {
	s := j.shape
	pm, ps := j.View(mean), j.View(sd)
	cut, err := pm.Cutpoints(s)
	if err != nil {
		return nil, err
	}
	return &Calibration{
		Source:            source,
		Traits:            mat.NewDense(s.People, s.Dims, clone(pm.Abilities)),
		TraitsSD:          mat.NewDense(s.People, s.Dims, clone(ps.Abilities)),
		Discriminations:   mat.NewDense(s.Dims, s.Items, clone(pm.Discriminations)),
		DiscriminationsSD: mat.NewDense(s.Dims, s.Items, clone(ps.Discriminations)),
		Difficulties0:     mat.NewDense(s.Dims, s.Items, clone(pm.Difficulties0)),
		DDifficulties:     clone(pm.DDifficulties),
		Cutpoints:         cut,
		Loss:              loss,
		Weighting:         j.cfg.weighting(),
	}, nil
}

// ItemParams returns the calibrated item parameters.
func (c *Calibration) ItemParams() ItemParams {
	return ItemParams{Discriminations: c.Discriminations, Cutpoints: c.Cutpoints, Weighting: c.Weighting}
}

// Scorer returns an importance-sampling scorer whose proposal matches the
// calibration sample's trait distribution.
func (c *Calibration) Scorer(draws int) (*Scorer, error) {
	mean, sd := ProposalFromTraits(c.Traits, c.TraitsSD)
	return NewScorer(c.ItemParams(), mean, sd, draws)
}

func clone(xs []float64) []float64 { return append([]float64(nil), xs...) }
