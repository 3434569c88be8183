package grm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/soaringjerry/synapirt/internal/prob"
)

// varSpec declares one node of the joint model: its shape, the nodes it is
// conditioned on, how it is constrained and how to score and draw it.
type varSpec struct {
	name     string
	size     int
	parents  []string
	bijector prob.Bijector
	observed bool
	field    func(*Params) *[]float64
	// logProb returns the node's log density given its parents and, when g
	// is non-nil, accumulates partial derivatives for the node and parents.
	logProb func(p, g *Params) float64
	sample  func(p *Params, rng *rand.Rand)
}

// Joint is the hierarchical prior over every latent variable, declared in
// topological order, plus the observed response node.
type Joint struct {
	shape  Shape
	cfg    Config
	vars   []varSpec
	blocks []prob.Block
	dim    int
}

// NewJoint builds the joint prior for a model of the given shape.
func NewJoint(shape Shape, cfg Config) (*Joint, error) {
	if shape.People < 1 || shape.Items < 1 || shape.Dims < 1 || shape.Categories < 2 {
		return nil, fmt.Errorf("%w: shape %+v", ErrShapeMismatch, shape)
	}
	j := &Joint{shape: shape, cfg: cfg}
	if cfg.Auxiliary {
		j.vars = j.auxiliarySpecs()
	} else {
		j.vars = j.directSpecs()
	}
	if err := checkOrder(j.vars); err != nil {
		return nil, err
	}
	offset := 0
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		j.blocks = append(j.blocks, prob.Block{Name: v.name, Offset: offset, Size: v.size, Bijector: v.bijector})
		offset += v.size
	}
	j.dim = offset
	return j, nil
}

// checkOrder verifies that names are unique and every parent is declared
// before its child, which makes the graph acyclic.
func checkOrder(vars []varSpec) error {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v.name] {
			return fmt.Errorf("%w: %q declared twice", ErrCyclicPrior, v.name)
		}
		for _, parent := range v.parents {
			if !seen[parent] {
				return fmt.Errorf("%w: %q depends on %q which is not declared before it", ErrCyclicPrior, v.name, parent)
			}
		}
		seen[v.name] = true
	}
	return nil
}

func (j *Joint) Shape() Shape { return j.shape }

func (j *Joint) Dim() int { return j.dim }

func (j *Joint) Blocks() []prob.Block { return j.blocks }

// Names lists every node, latent and observed, in declaration order.
func (j *Joint) Names() []string {
	out := make([]string, 0, len(j.vars))
	for _, v := range j.vars {
		out = append(out, v.name)
	}
	return out
}

// Parents returns the conditioning nodes of name.
func (j *Joint) Parents(name string) []string {
	for _, v := range j.vars {
		if v.name == name {
			return append([]string(nil), v.parents...)
		}
	}
	return nil
}

// View returns a Params whose fields alias x.
func (j *Joint) View(x []float64) *Params {
	p := &Params{}
	i := 0
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		b := j.blocks[i]
		*v.field(p) = x[b.Offset : b.Offset+b.Size : b.Offset+b.Size]
		i++
	}
	return p
}

// Flatten copies p into a new vector laid out as Blocks.
func (j *Joint) Flatten(p *Params) ([]float64, error) {
	out := make([]float64, j.dim)
	i := 0
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		b := j.blocks[i]
		src := *v.field(p)
		if len(src) != b.Size {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrShapeMismatch, v.name, len(src), b.Size)
		}
		copy(out[b.Offset:], src)
		i++
	}
	return out, nil
}

// LogPrior returns the prior log density of p. When g is non-nil, and
// aliases a zeroed vector of the same layout, gradients are accumulated.
func (j *Joint) LogPrior(p, g *Params) float64 {
	var lp float64
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		lp += v.logProb(p, g)
	}
	return lp
}

// SamplePrior draws every latent variable in declaration order.
func (j *Joint) SamplePrior(rng *rand.Rand) *Params {
	p := j.View(make([]float64, j.dim))
	for _, v := range j.vars {
		if v.observed {
			continue
		}
		v.sample(p, rng)
	}
	return p
}

// dimScale is the dimension-level shrinkage scale for the (d,i) entry at flat
// index k of a dims×items array.
func (j *Joint) dimScale(k int) float64 {
	d := k / j.shape.Items
	return math.Pow(j.cfg.DimensionalDecay, -float64(d+2))
}

func (j *Joint) directSpecs() []varSpec {
	s := j.shape
	di := s.Dims * s.Items
	return []varSpec{
		j.muSpec(),
		{
			name: varEta, size: s.Items, bijector: prob.SoftplusBijector{}, field: fieldEta,
			logProb: func(p, g *Params) float64 {
				return sumLogProb(p.Eta, gradOf(g, fieldEta), func(int) distribution { return prob.HalfCauchy{Scale: 1} })
			},
			sample: func(p *Params, rng *rand.Rand) {
				for i := range p.Eta {
					p.Eta[i] = prob.HalfCauchy{Scale: 1}.Rand(rng)
				}
			},
		},
		{
			name: varXi, size: di, bijector: prob.SoftplusBijector{}, field: fieldXi,
			logProb: func(p, g *Params) float64 {
				return sumLogProb(p.Xi, gradOf(g, fieldXi), func(k int) distribution { return prob.HalfCauchy{Scale: j.dimScale(k)} })
			},
			sample: func(p *Params, rng *rand.Rand) {
				for k := range p.Xi {
					p.Xi[k] = prob.HalfCauchy{Scale: j.dimScale(k)}.Rand(rng)
				}
			},
		},
		j.difficulties0Spec(),
		j.discriminationsSpec(),
		j.ddifficultiesSpec(),
		j.abilitiesSpec(),
		j.observedSpec(),
	}
}

// auxiliarySpecs writes each half-Cauchy scale as an inverse-gamma mixture:
// s_a ~ IG(1/2, b), s | s_a ~ IG(1/2, 1/s_a).
func (j *Joint) auxiliarySpecs() []varSpec {
	s := j.shape
	di := s.Dims * s.Items
	return []varSpec{
		j.muSpec(),
		{
			name: varEtaAux, size: s.Items, bijector: prob.SoftplusBijector{}, field: fieldEtaAux,
			logProb: func(p, g *Params) float64 {
				return sumLogProb(p.EtaAux, gradOf(g, fieldEtaAux), func(int) distribution { return prob.InverseGamma{Alpha: 0.5, Beta: 1} })
			},
			sample: func(p *Params, rng *rand.Rand) {
				for i := range p.EtaAux {
					p.EtaAux[i] = prob.InverseGamma{Alpha: 0.5, Beta: 1}.Rand(rng)
				}
			},
		},
		j.mixedScaleSpec(varEta, varEtaAux, s.Items, fieldEta, fieldEtaAux),
		{
			name: varXiAux, size: di, bijector: prob.SoftplusBijector{}, field: fieldXiAux,
			logProb: func(p, g *Params) float64 {
				return sumLogProb(p.XiAux, gradOf(g, fieldXiAux), func(k int) distribution { return prob.InverseGamma{Alpha: 0.5, Beta: j.dimScale(k)} })
			},
			sample: func(p *Params, rng *rand.Rand) {
				for k := range p.XiAux {
					p.XiAux[k] = prob.InverseGamma{Alpha: 0.5, Beta: j.dimScale(k)}.Rand(rng)
				}
			},
		},
		j.mixedScaleSpec(varXi, varXiAux, di, fieldXi, fieldXiAux),
		j.difficulties0Spec(),
		j.discriminationsSpec(),
		j.ddifficultiesSpec(),
		j.abilitiesSpec(),
		j.observedSpec(),
	}
}

// mixedScaleSpec declares s | s_a ~ InverseGamma(1/2, 1/s_a).
func (j *Joint) mixedScaleSpec(name, parent string, size int, field, parentField func(*Params) *[]float64) varSpec {
	return varSpec{
		name: name, size: size, parents: []string{parent}, bijector: prob.SoftplusBijector{}, field: field,
		logProb: func(p, g *Params) float64 {
			vals, aux := *field(p), *parentField(p)
			var gv, ga []float64
			if g != nil {
				gv, ga = *field(g), *parentField(g)
			}
			var lp float64
			for k, x := range vals {
				d := prob.InverseGamma{Alpha: 0.5, Beta: 1 / aux[k]}
				lp += d.LogProb(x)
				if g != nil {
					gv[k] += d.ScoreInput(x)
					ga[k] += d.ScoreBeta(x) * (-1 / (aux[k] * aux[k]))
				}
			}
			return lp
		},
		sample: func(p *Params, rng *rand.Rand) {
			vals, aux := *field(p), *parentField(p)
			for k := range vals {
				vals[k] = prob.InverseGamma{Alpha: 0.5, Beta: 1 / aux[k]}.Rand(rng)
			}
		},
	}
}

func (j *Joint) muSpec() varSpec {
	return varSpec{
		name: varMu, size: j.shape.Dims * j.shape.Items, bijector: prob.IdentityBijector{}, field: fieldMu,
		logProb: func(p, g *Params) float64 {
			return sumLogProb(p.Mu, gradOf(g, fieldMu), func(int) distribution { return prob.Normal{Mu: 0, Sigma: 1} })
		},
		sample: func(p *Params, rng *rand.Rand) {
			for k := range p.Mu {
				p.Mu[k] = rng.NormFloat64()
			}
		},
	}
}

func (j *Joint) difficulties0Spec() varSpec {
	return varSpec{
		name: varDifficulties0, size: j.shape.Dims * j.shape.Items, parents: []string{varMu},
		bijector: prob.IdentityBijector{}, field: fieldDifficulties0,
		logProb: func(p, g *Params) float64 {
			var lp float64
			for k, x := range p.Difficulties0 {
				d := prob.Normal{Mu: p.Mu[k], Sigma: 1}
				lp += d.LogProb(x)
				if g != nil {
					g.Difficulties0[k] += d.ScoreInput(x)
					g.Mu[k] += d.ScoreMu(x)
				}
			}
			return lp
		},
		sample: func(p *Params, rng *rand.Rand) {
			for k := range p.Difficulties0 {
				p.Difficulties0[k] = p.Mu[k] + rng.NormFloat64()
			}
		},
	}
}

// discriminationsSpec declares a_di | eta, xi ~ HalfNormal(sqrt(eta_i * xi_di)).
func (j *Joint) discriminationsSpec() varSpec {
	items := j.shape.Items
	return varSpec{
		name: varDiscriminations, size: j.shape.Dims * items, parents: []string{varEta, varXi},
		bijector: prob.SoftplusBijector{}, field: fieldDiscriminations,
		logProb: func(p, g *Params) float64 {
			var lp float64
			for k, x := range p.Discriminations {
				i := k % items
				v := p.Eta[i] * p.Xi[k]
				if !(v > 0) {
					return math.Inf(-1)
				}
				d := prob.HalfNormal{Sigma: math.Sqrt(v)}
				lp += d.LogProb(x)
				if g != nil {
					sv := d.ScoreVariance(x)
					g.Discriminations[k] += d.ScoreInput(x)
					g.Eta[i] += sv * p.Xi[k]
					g.Xi[k] += sv * p.Eta[i]
				}
			}
			return lp
		},
		sample: func(p *Params, rng *rand.Rand) {
			for k := range p.Discriminations {
				p.Discriminations[k] = prob.HalfNormal{Sigma: math.Sqrt(p.Eta[k%items] * p.Xi[k])}.Rand(rng)
			}
		},
	}
}

func (j *Joint) ddifficultiesSpec() varSpec {
	return varSpec{
		name: varDDifficulties, size: j.shape.Dims * j.shape.Items * j.shape.Increments(),
		bijector: prob.SoftplusBijector{}, field: fieldDDifficulties,
		logProb: func(p, g *Params) float64 {
			return sumLogProb(p.DDifficulties, gradOf(g, fieldDDifficulties), func(int) distribution { return prob.HalfNormal{Sigma: 1} })
		},
		sample: func(p *Params, rng *rand.Rand) {
			for k := range p.DDifficulties {
				p.DDifficulties[k] = prob.HalfNormal{Sigma: 1}.Rand(rng)
			}
		},
	}
}

func (j *Joint) abilitiesSpec() varSpec {
	return varSpec{
		name: varAbilities, size: j.shape.People * j.shape.Dims, bijector: prob.IdentityBijector{}, field: fieldAbilities,
		logProb: func(p, g *Params) float64 {
			return sumLogProb(p.Abilities, gradOf(g, fieldAbilities), func(int) distribution { return prob.Normal{Mu: 0, Sigma: 1} })
		},
		sample: func(p *Params, rng *rand.Rand) {
			for k := range p.Abilities {
				p.Abilities[k] = rng.NormFloat64()
			}
		},
	}
}

// observedSpec records the response node's parents so the dependency check
// covers it; its density is the likelihood.
func (j *Joint) observedSpec() varSpec {
	return varSpec{
		name:     varObserved,
		parents:  []string{varAbilities, varDiscriminations, varDifficulties0, varDDifficulties},
		observed: true,
	}
}

type distribution interface {
	LogProb(x float64) float64
	ScoreInput(x float64) float64
}

func gradOf(g *Params, field func(*Params) *[]float64) []float64 {
	if g == nil {
		return nil
	}
	return *field(g)
}

func sumLogProb(xs, grad []float64, dist func(k int) distribution) float64 {
	var lp float64
	for k, x := range xs {
		d := dist(k)
		lp += d.LogProb(x)
		if grad != nil {
			grad[k] += d.ScoreInput(x)
		}
	}
	return lp
}
