package services

import "github.com/soaringjerry/synapirt/internal/grm"

// ReverseScore maps a raw Likert value to its reverse-scored value
// given the number of points in the scale (e.g., 5 or 7).
// raw is expected to be within [1, points]. Out-of-range values are clamped.
func ReverseScore(raw, points int) int {
	if points < 2 {
		return raw
	}
	if raw < 1 {
		raw = 1
	}
	if raw > points {
		raw = points
	}
	return (points + 1) - raw
}

// RecodeLikert turns a raw 1..points answer into a 0-based graded response
// code, reversing it when the item is reverse scored. Values outside
// 1..points are missing.
func RecodeLikert(raw, points int, reverse bool) int {
	if raw < 1 || raw > points {
		return grm.Missing
	}
	if reverse {
		raw = ReverseScore(raw, points)
	}
	return raw - 1
}
