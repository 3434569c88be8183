package grm

import (
	"fmt"
)

// Missing marks an unobserved response. Any negative code is treated as missing.
const Missing = -1

// ResponseMatrix holds respondent × item ordinal codes in 0..Categories-1,
// row-major. Models keep a reference to it and never modify it.
type ResponseMatrix struct {
	People     int
	Items      int
	Categories int
	Codes      []int
	PersonIDs  []string
	ItemIDs    []string
}

// NewResponseMatrix flattens rows into a matrix. When categories is 0 it is
// inferred as the largest observed code plus one.
func NewResponseMatrix(rows [][]int, categories int) (*ResponseMatrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty response matrix", ErrShapeMismatch)
	}
	items := len(rows[0])
	codes := make([]int, 0, len(rows)*items)
	for n, row := range rows {
		if len(row) != items {
			return nil, fmt.Errorf("%w: row %d has %d items, want %d", ErrShapeMismatch, n, len(row), items)
		}
		codes = append(codes, row...)
	}
	x := &ResponseMatrix{People: len(rows), Items: items, Categories: categories, Codes: codes}
	if categories == 0 {
		x.Categories = x.MaxCode() + 1
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *ResponseMatrix) At(n, i int) int { return x.Codes[n*x.Items+i] }

func (x *ResponseMatrix) Observed(n, i int) bool { return x.Codes[n*x.Items+i] >= 0 }

// Row returns respondent n's codes without copying.
func (x *ResponseMatrix) Row(n int) []int { return x.Codes[n*x.Items : (n+1)*x.Items] }

// Validate checks shape and that every code is missing or in 0..Categories-1.
func (x *ResponseMatrix) Validate() error {
	if x.People < 1 || x.Items < 1 || len(x.Codes) != x.People*x.Items {
		return fmt.Errorf("%w: %d codes for %d×%d matrix", ErrShapeMismatch, len(x.Codes), x.People, x.Items)
	}
	if x.Categories < 2 {
		return fmt.Errorf("%w: need at least 2 categories, have %d", ErrInvalidResponse, x.Categories)
	}
	if x.PersonIDs != nil && len(x.PersonIDs) != x.People {
		return fmt.Errorf("%w: %d person ids for %d people", ErrShapeMismatch, len(x.PersonIDs), x.People)
	}
	if x.ItemIDs != nil && len(x.ItemIDs) != x.Items {
		return fmt.Errorf("%w: %d item ids for %d items", ErrShapeMismatch, len(x.ItemIDs), x.Items)
	}
	for idx, c := range x.Codes {
		if c >= x.Categories {
			return fmt.Errorf("%w: respondent %d item %d has code %d, categories %d",
				ErrInvalidResponse, idx/x.Items, idx%x.Items, c, x.Categories)
		}
	}
	return nil
}

// MaxCode returns the largest observed code, or -1 when nothing is observed.
func (x *ResponseMatrix) MaxCode() int {
	m := -1
	for _, c := range x.Codes {
		if c > m {
			m = c
		}
	}
	return m
}

// MinCode returns the smallest observed code, or -1 when nothing is observed.
func (x *ResponseMatrix) MinCode() int {
	m := -1
	for _, c := range x.Codes {
		if c >= 0 && (m < 0 || c < m) {
			m = c
		}
	}
	return m
}

// CompleteRows counts respondents with no missing responses.
func (x *ResponseMatrix) CompleteRows() int {
	count := 0
	for n := 0; n < x.People; n++ {
		complete := true
		for _, c := range x.Row(n) {
			if c < 0 {
				complete = false
				break
			}
		}
		if complete {
			count++
		}
	}
	return count
}

// Subset returns a new matrix holding the given respondents in order.
func (x *ResponseMatrix) Subset(rows []int) *ResponseMatrix {
	out := &ResponseMatrix{
		People:     len(rows),
		Items:      x.Items,
		Categories: x.Categories,
		Codes:      make([]int, 0, len(rows)*x.Items),
		ItemIDs:    x.ItemIDs,
	}
	if x.PersonIDs != nil {
		out.PersonIDs = make([]string, 0, len(rows))
	}
	for _, n := range rows {
		out.Codes = append(out.Codes, x.Row(n)...)
		if x.PersonIDs != nil {
			out.PersonIDs = append(out.PersonIDs, x.PersonIDs[n])
		}
	}
	return out
}
