package services

import (
	"strings"
	"testing"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWideCSV(t *testing.T) {
	in := "item_a,pid,item_b\n1,p1,3\nNA,p2,2\n4,p3,\n"
	x, err := ReadWideCSV(strings.NewReader(in), CSVOptions{IDColumn: "pid", Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, x.PersonIDs)
	assert.Equal(t, []string{"item_a", "item_b"}, x.ItemIDs)
	assert.Equal(t, []int{0, 2, grm.Missing, 1, 3, grm.Missing}, x.Codes)
	assert.Equal(t, 4, x.Categories)
}

func TestReadWideCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts CSVOptions
	}{
		{"empty", "", CSVOptions{}},
		{"no items", "id\np1\n", CSVOptions{}},
		{"no rows", "id,a\n", CSVOptions{}},
		{"bad id column", "id,a\np1,1\n", CSVOptions{IDColumn: "pid"}},
		{"non integer", "id,a\np1,x\n", CSVOptions{}},
		{"ragged", "id,a,b\np1,1\n", CSVOptions{}},
		{"above categories", "id,a\np1,5\n", CSVOptions{Categories: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWideCSV(strings.NewReader(tt.in), tt.opts)
			se, ok := AsServiceError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, ErrorInvalid, se.Code)
		})
	}
}

func TestWideCSVRoundTrip(t *testing.T) {
	x, err := grm.NewResponseMatrix([][]int{{0, 2}, {grm.Missing, 1}}, 3)
	require.NoError(t, err)
	x.PersonIDs = []string{"r1", "r2"}
	x.ItemIDs = []string{"q1", "q2"}
	b, err := ExportWideCSV(x)
	require.NoError(t, err)
	assert.Equal(t, "participant_id,q1,q2\nr1,0,2\nr2,,1\n", string(b))

	back, err := ReadWideCSV(strings.NewReader(string(b)), CSVOptions{Categories: 3})
	require.NoError(t, err)
	assert.Equal(t, x.Codes, back.Codes)
	assert.Equal(t, x.PersonIDs, back.PersonIDs)
}

func TestMatrixFromResponses(t *testing.T) {
	sc := &Scale{ID: "S", Points: 5}
	items := []*Item{{ID: "b", Position: 2}, {ID: "a", Position: 1}}
	responses := []*Response{
		{ParticipantID: "p2", ItemID: "a", ScoreValue: 5},
		{ParticipantID: "p1", ItemID: "b", ScoreValue: 1},
		{ParticipantID: "p1", ItemID: "zzz", ScoreValue: 1},
	}
	x, err := MatrixFromResponses(sc, items, responses)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, x.ItemIDs)
	assert.Equal(t, []string{"p1", "p2"}, x.PersonIDs)
	assert.Equal(t, []int{grm.Missing, 0, 4, grm.Missing}, x.Codes)
	assert.Equal(t, 5, x.Categories)

	_, err = MatrixFromResponses(sc, nil, responses)
	assert.Error(t, err)
	_, err = MatrixFromResponses(sc, items, nil)
	assert.Error(t, err)
}
