package grm

// Params is one assignment of every latent variable. Each field is a flat
// row-major slice; shapes are (D dims, I items, N people, K categories):
//
//	Mu, Xi, XiAux, Difficulties0, Discriminations  D×I
//	Eta, EtaAux                                    I
//	DDifficulties                                  D×I×(K-2)
//	Abilities                                      N×D
//
// EtaAux and XiAux are nil for the direct parameterization.
type Params struct {
	Mu              []float64
	Eta             []float64
	EtaAux          []float64
	Xi              []float64
	XiAux           []float64
	Difficulties0   []float64
	Discriminations []float64
	DDifficulties   []float64
	Abilities       []float64
}

// Cutpoints builds ordered thresholds from Difficulties0 and DDifficulties.
func (p *Params) Cutpoints(s Shape) (Cutpoints, error) {
	return BuildCutpoints(s.Dims, s.Items, s.Categories, p.Difficulties0, p.DDifficulties)
}

const (
	varMu              = "mu"
	varEta             = "eta"
	varEtaAux          = "eta_a"
	varXi              = "xi"
	varXiAux           = "xi_a"
	varDifficulties0   = "difficulties0"
	varDiscriminations = "discriminations"
	varDDifficulties   = "ddifficulties"
	varAbilities       = "abilities"
	varObserved        = "x"
)

func fieldMu(p *Params) *[]float64              { return &p.Mu }
func fieldEta(p *Params) *[]float64             { return &p.Eta }
func fieldEtaAux(p *Params) *[]float64          { return &p.EtaAux }
func fieldXi(p *Params) *[]float64              { return &p.Xi }
func fieldXiAux(p *Params) *[]float64           { return &p.XiAux }
func fieldDifficulties0(p *Params) *[]float64   { return &p.Difficulties0 }
func fieldDiscriminations(p *Params) *[]float64 { return &p.Discriminations }
func fieldDDifficulties(p *Params) *[]float64   { return &p.DDifficulties }
func fieldAbilities(p *Params) *[]float64       { return &p.Abilities }
