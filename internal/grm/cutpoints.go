package grm

import "fmt"

// Cutpoints holds ordered difficulty thresholds, dims × items × levels,
// row-major. Levels is K-1.
type Cutpoints struct {
	Dims   int
	Items  int
	Levels int
	Data   []float64
}

func (c Cutpoints) At(d, i, j int) float64 { return c.Data[(d*c.Items+i)*c.Levels+j] }

// Item returns the thresholds of item i on dimension d without copying.
func (c Cutpoints) Item(d, i int) []float64 {
	off := (d*c.Items + i) * c.Levels
	return c.Data[off : off+c.Levels]
}

// BuildCutpoints forms thresholds as base plus the running sum of increments.
// base is dims×items and increments is dims×items×(categories-2). With
// non-negative increments the result is non-decreasing along the last axis.
func BuildCutpoints(dims, items, categories int, base, increments []float64) (Cutpoints, error) {
	levels := categories - 1
	if levels < 1 || len(base) != dims*items || len(increments) != dims*items*(levels-1) {
		return Cutpoints{}, fmt.Errorf("%w: cutpoints for %d×%d×%d from %d base and %d increments",
			ErrShapeMismatch, dims, items, levels, len(base), len(increments))
	}
	c := Cutpoints{Dims: dims, Items: items, Levels: levels, Data: make([]float64, dims*items*levels)}
	fillCutpoints(c.Data, levels, base, increments)
	return c, nil
}

func fillCutpoints(dst []float64, levels int, base, increments []float64) {
	for di := range base {
		row := dst[di*levels : (di+1)*levels]
		inc := increments[di*(levels-1) : (di+1)*(levels-1)]
		row[0] = base[di]
		for j := 1; j < levels; j++ {
			row[j] = row[j-1] + inc[j-1]
		}
	}
}

// foldCutpointGrad maps a gradient on thresholds back onto base and
// increments, accumulating into gBase and gInc.
func foldCutpointGrad(levels int, gCut, gBase, gInc []float64) {
	for di := range gBase {
		row := gCut[di*levels : (di+1)*levels]
		var tail float64
		for j := levels - 1; j >= 1; j-- {
			tail += row[j]
			gInc[di*(levels-1)+j-1] += tail
		}
		gBase[di] += tail + row[0]
	}
}
