package grm

import (
	"fmt"
	"math"

	"github.com/soaringjerry/synapirt/internal/prob"
)

// likelihood evaluates log p(x | params) over a response matrix. Missing
// cells are masked: they are never evaluated and contribute exactly zero
// to the value and the gradient.
type likelihood struct {
	shape  Shape
	data   *ResponseMatrix
	kernel *kernel
	cut    Cutpoints
	cutBuf []float64
	gCut   []float64
	levels int
}

func newLikelihood(shape Shape, data *ResponseMatrix, w Weighting) *likelihood {
	levels := shape.Levels()
	cutBuf := make([]float64, shape.Dims*shape.Items*levels)
	return &likelihood{
		shape:  shape,
		data:   data,
		kernel: newKernel(shape, w),
		cut:    Cutpoints{Dims: shape.Dims, Items: shape.Items, Levels: levels, Data: cutBuf},
		cutBuf: cutBuf,
		gCut:   make([]float64, len(cutBuf)),
		levels: levels,
	}
}

// eval returns the total log-likelihood. perPerson, when non-nil, receives
// each respondent's contribution. g, when non-nil, accumulates gradients
// for abilities, discriminations, difficulties0 and ddifficulties.
func (l *likelihood) eval(p *Params, g *Params, perPerson []float64) float64 {
	s := l.shape
	fillCutpoints(l.cutBuf, l.levels, p.Difficulties0, p.DDifficulties)
	var gAlpha, gCut []float64
	if g != nil {
		gAlpha = g.Discriminations
		gCut = l.gCut
		for k := range gCut {
			gCut[k] = 0
		}
	}
	var total float64
	for n := 0; n < s.People; n++ {
		theta := p.Abilities[n*s.Dims : (n+1)*s.Dims]
		var gTheta []float64
		if g != nil {
			gTheta = g.Abilities[n*s.Dims : (n+1)*s.Dims]
		}
		var row float64
		for i, code := range l.data.Row(n) {
			if code < 0 {
				continue
			}
			row += l.kernel.logProb(theta, p.Discriminations, l.cut, i, code, gTheta, gAlpha, gCut)
		}
		if perPerson != nil {
			perPerson[n] = row
		}
		total += row
	}
	if g != nil {
		foldCutpointGrad(l.levels, gCut, g.Difficulties0, g.DDifficulties)
	}
	return total
}

// posterior is the unnormalized joint log density of the latent variables
// with the responses held fixed. It implements prob.Target.
type posterior struct {
	joint *Joint
	lik   *likelihood
}

func newPosterior(j *Joint, data *ResponseMatrix) *posterior {
	return &posterior{joint: j, lik: newLikelihood(j.shape, data, j.cfg.weighting())}
}

func (t *posterior) Dim() int { return t.joint.dim }

func (t *posterior) Blocks() []prob.Block { return t.joint.blocks }

func (t *posterior) LogDensity(x, grad []float64) float64 {
	p := t.joint.View(x)
	var g *Params
	if grad != nil {
		for k := range grad {
			grad[k] = 0
		}
		g = t.joint.View(grad)
	}
	lp := t.joint.LogPrior(p, g)
	if math.IsNaN(lp) || math.IsInf(lp, -1) {
		return lp
	}
	return lp + t.lik.eval(p, g, nil)
}

// LogLikelihood returns each respondent's log-likelihood under p.
func (j *Joint) LogLikelihood(x *ResponseMatrix, p *Params) ([]float64, error) {
	if err := j.checkData(x); err != nil {
		return nil, err
	}
	if err := j.checkParams(p); err != nil {
		return nil, err
	}
	l := newLikelihood(j.shape, x, j.cfg.weighting())
	out := make([]float64, x.People)
	l.eval(p, nil, out)
	return out, nil
}

// LogJoint returns log p(params) + log p(x | params).
func (j *Joint) LogJoint(x *ResponseMatrix, p *Params) (float64, error) {
	ll, err := j.LogLikelihood(x, p)
	if err != nil {
		return 0, err
	}
	lp := j.LogPrior(p, nil)
	for _, v := range ll {
		lp += v
	}
	return lp, nil
}

// checkData verifies x matches the joint's people/items/categories.
func (j *Joint) checkData(x *ResponseMatrix) error {
	s := j.shape
	if x.People != s.People || x.Items != s.Items {
		return fmt.Errorf("%w: responses are %d×%d, model expects %d×%d", ErrShapeMismatch, x.People, x.Items, s.People, s.Items)
	}
	if x.Categories > s.Categories {
		return fmt.Errorf("%w: responses have %d categories, model has %d", ErrInvalidResponse, x.Categories, s.Categories)
	}
	return x.Validate()
}

func (j *Joint) checkParams(p *Params) error {
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		if got := len(*v.field(p)); got != v.size {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrShapeMismatch, v.name, got, v.size)
		}
	}
	return nil
}
