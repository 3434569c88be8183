package prob

// Block names a contiguous slice of a flattened parameter vector and the
// bijector that constrains it.
type Block struct {
	Name     string
	Offset   int
	Size     int
	Bijector Bijector
}

// Target is an unnormalized log density over a flat vector of constrained
// parameters.
type Target interface {
	Dim() int
	Blocks() []Block
	// LogDensity returns log p(x). When grad is non-nil it is overwritten
	// with d log p / dx.
	LogDensity(x, grad []float64) float64
}

// Unconstrained evaluates a Target in unconstrained coordinates z, where
// x = T(z) blockwise, including the log-Jacobian correction.
type Unconstrained struct {
	target Target
	blocks []Block
	x      []float64
	gx     []float64
}

func NewUnconstrained(t Target) *Unconstrained {
	return &Unconstrained{
		target: t,
		blocks: t.Blocks(),
		x:      make([]float64, t.Dim()),
		gx:     make([]float64, t.Dim()),
	}
}

func (u *Unconstrained) Dim() int { return u.target.Dim() }

func (u *Unconstrained) Blocks() []Block { return u.blocks }

// LogDensity returns log p(T(z)) + log|J_T(z)| and, when grad is non-nil,
// its gradient with respect to z.
func (u *Unconstrained) LogDensity(z, grad []float64) float64 {
	Constrain(u.blocks, z, u.x)
	var gx []float64
	if grad != nil {
		gx = u.gx
	}
	lp := u.target.LogDensity(u.x, gx)
	for _, b := range u.blocks {
		for i := b.Offset; i < b.Offset+b.Size; i++ {
			lp += b.Bijector.ForwardLogDetJacobian(z[i])
			if grad != nil {
				grad[i] = gx[i]*b.Bijector.ForwardDerivative(z[i]) + b.Bijector.LogDetJacobianGrad(z[i])
			}
		}
	}
	return lp
}

// Constrain writes T(z) into x.
func Constrain(blocks []Block, z, x []float64) {
	for _, b := range blocks {
		for i := b.Offset; i < b.Offset+b.Size; i++ {
			x[i] = b.Bijector.Forward(z[i])
		}
	}
}

// Unconstrain writes T^-1(x) into z.
func Unconstrain(blocks []Block, x, z []float64) {
	for _, b := range blocks {
		for i := b.Offset; i < b.Offset+b.Size; i++ {
			z[i] = b.Bijector.Inverse(x[i])
		}
	}
}
