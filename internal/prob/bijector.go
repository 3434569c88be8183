package prob

// Bijector maps an unconstrained real to a parameter's constrained domain.
type Bijector interface {
	Name() string
	Forward(x float64) float64
	Inverse(y float64) float64
	// ForwardDerivative is dy/dx at x.
	ForwardDerivative(x float64) float64
	// ForwardLogDetJacobian is log|dy/dx| at x.
	ForwardLogDetJacobian(x float64) float64
	// LogDetJacobianGrad is d/dx log|dy/dx| at x.
	LogDetJacobianGrad(x float64) float64
}

// IdentityBijector leaves values unconstrained.
type IdentityBijector struct{}

func (IdentityBijector) Name() string                          { return "identity" }
func (IdentityBijector) Forward(x float64) float64             { return x }
func (IdentityBijector) Inverse(y float64) float64             { return y }
func (IdentityBijector) ForwardDerivative(float64) float64     { return 1 }
func (IdentityBijector) ForwardLogDetJacobian(float64) float64 { return 0 }
func (IdentityBijector) LogDetJacobianGrad(float64) float64    { return 0 }

// SoftplusBijector constrains values to (0, inf).
type SoftplusBijector struct{}

func (SoftplusBijector) Name() string                        { return "softplus" }
func (SoftplusBijector) Forward(x float64) float64           { return Softplus(x) }
func (SoftplusBijector) Inverse(y float64) float64           { return SoftplusInverse(y) }
func (SoftplusBijector) ForwardDerivative(x float64) float64 { return Sigmoid(x) }

// log sigmoid(x) = -softplus(-x)
func (SoftplusBijector) ForwardLogDetJacobian(x float64) float64 { return -Softplus(-x) }
func (SoftplusBijector) LogDetJacobianGrad(x float64) float64    { return Sigmoid(-x) }
