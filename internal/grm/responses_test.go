package grm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseMatrix(t *testing.T) {
	tests := []struct {
		name       string
		rows       [][]int
		categories int
		wantK      int
		wantErr    error
	}{
		{"infers categories", [][]int{{0, 2}, {1, Missing}}, 0, 3, nil},
		{"explicit categories", [][]int{{0, 1}, {1, 1}}, 5, 5, nil},
		{"code above range", [][]int{{0, 3}}, 3, 0, ErrInvalidResponse},
		{"ragged rows", [][]int{{0, 1}, {1}}, 0, 0, ErrShapeMismatch},
		{"empty", nil, 0, 0, ErrShapeMismatch},
		{"single category", [][]int{{0, 0}}, 0, 0, ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := NewResponseMatrix(tt.rows, tt.categories)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantK, x.Categories)
		})
	}
}

func TestResponseMatrixSummaries(t *testing.T) {
	x, err := NewResponseMatrix([][]int{{1, 2, 3}, {Missing, 1, 1}, {2, 2, 2}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, x.MaxCode())
	assert.Equal(t, 1, x.MinCode())
	assert.Equal(t, 2, x.CompleteRows())
	assert.False(t, x.Observed(1, 0))

	x.PersonIDs = []string{"a", "b", "c"}
	sub := x.Subset([]int{2, 0})
	assert.Equal(t, []int{2, 2, 2, 1, 2, 3}, sub.Codes)
	assert.Equal(t, []string{"c", "a"}, sub.PersonIDs)
}
