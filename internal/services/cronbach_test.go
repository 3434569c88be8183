package services

import (
	"testing"

	"github.com/soaringjerry/synapirt/internal/grm"
)

func TestCronbachAlpha_PerfectCorrelation(t *testing.T) {
	data := [][]float64{
		{1, 1, 1},
		{2, 2, 2},
		{3, 3, 3},
		{4, 4, 4},
	}
	got := CronbachAlpha(data)
	if got < 0.999 || got > 1.001 {
		t.Fatalf("alpha expected ~1.0, got %f", got)
	}
}

func TestCronbachAlpha_Bounds(t *testing.T) {
	data := [][]float64{
		{1, 2, 3},
		{2, 1, 4},
		{3, 0, 5},
		{4, -1, 6},
	}
	got := CronbachAlpha(data)
	if got < 0 || got > 1 {
		t.Fatalf("alpha out of bounds [0,1]: %f", got)
	}
}

func TestCronbachAlpha_Known(t *testing.T) {
	data := [][]float64{{1, 2}, {2, 2}, {3, 4}}
	got := CronbachAlpha(data)
	// item vars: 2/3, 8/9; totals 3,4,7 var 26/9; alpha = 2*(1-(14/9)/(26/9)) = 12/13
	if d := got - 12.0/13.0; d > 1e-12 || d < -1e-12 {
		t.Fatalf("alpha = %f, want %f", got, 12.0/13.0)
	}
}

func TestAlphaFromMatrixSkipsIncompleteRows(t *testing.T) {
	x, err := grm.NewResponseMatrix([][]int{{0, 1}, {1, 1}, {grm.Missing, 0}, {2, 3}}, 0)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	_, n := AlphaFromMatrix(x)
	if n != 3 {
		t.Fatalf("expected 3 complete rows, got %d", n)
	}
}
