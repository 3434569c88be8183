package services

import (
	"testing"

	"github.com/soaringjerry/synapirt/internal/grm"
)

func TestReverseScore(t *testing.T) {
	cases := []struct {
		raw, points, want int
	}{
		{1, 5, 5},
		{2, 5, 4},
		{3, 5, 3},
		{5, 5, 1},
		{0, 5, 5},
		{6, 5, 1},
		{1, 7, 7},
		{7, 7, 1},
	}
	for _, c := range cases {
		if got := ReverseScore(c.raw, c.points); got != c.want {
			t.Fatalf("ReverseScore(%d,%d)=%d, want %d", c.raw, c.points, got, c.want)
		}
	}
}

func TestRecodeLikert(t *testing.T) {
	cases := []struct {
		raw, points int
		reverse     bool
		want        int
	}{
		{1, 5, false, 0},
		{5, 5, false, 4},
		{5, 5, true, 0},
		{2, 7, true, 5},
		{0, 5, false, grm.Missing},
		{6, 5, true, grm.Missing},
	}
	for _, c := range cases {
		if got := RecodeLikert(c.raw, c.points, c.reverse); got != c.want {
			t.Fatalf("RecodeLikert(%d,%d,%v)=%d, want %d", c.raw, c.points, c.reverse, got, c.want)
		}
	}
}
