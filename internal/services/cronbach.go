package services

import (
	"github.com/soaringjerry/synapirt/internal/grm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CronbachAlpha computes Cronbach's alpha for a matrix of item responses
// shaped [nParticipants][nItems]. Population variances are used throughout,
// which yields alpha=1.0 for perfectly correlated items. The result is
// clamped to [0, 1].
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}
	col := make([]float64, n)
	totals := make([]float64, n)
	var sumItemVars float64
	for j := 0; j < k; j++ {
		for i, row := range matrix {
			if len(row) != k {
				return 0
			}
			col[i] = row[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sumItemVars += v
		floats.Add(totals, col)
	}
	_, totalVar := stat.PopMeanVariance(totals, nil)
	if totalVar == 0 {
		return 0
	}
	kf := float64(k)
	alpha := (kf / (kf - 1.0)) * (1.0 - (sumItemVars / totalVar))
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

// AlphaFromMatrix computes alpha over the fully observed respondents of x
// and reports how many were used.
func AlphaFromMatrix(x *grm.ResponseMatrix) (float64, int) {
	rows := make([][]float64, 0, x.People)
	for n := 0; n < x.People; n++ {
		row := make([]float64, 0, x.Items)
		for _, c := range x.Row(n) {
			if c < 0 {
				row = nil
				break
			}
			row = append(row, float64(c))
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return CronbachAlpha(rows), len(rows)
}
