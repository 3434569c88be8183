package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := Open(memoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	applied, err := RunMigrations(db, "")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql", "0002_calibration_runs.sql"}, applied)
	store, err := NewSQLiteStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db, err := Open(memoryPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = RunMigrations(db, "")
	require.NoError(t, err)
	again, err := RunMigrations(db, "")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestScaleItemsAndResponses(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddScale(&services.Scale{ID: "s1", Name: "RWA", Points: 5, CreatedAt: now}))
	require.NoError(t, s.AddItem(&services.Item{ID: "i2", ScaleID: "s1", Position: 1, ReverseScored: true}))
	require.NoError(t, s.AddItem(&services.Item{ID: "i1", ScaleID: "s1", Stem: "first", Position: 0}))
	require.NoError(t, s.AddParticipant(&services.Participant{ID: "p1", ScaleID: "s1"}))
	require.NoError(t, s.AddResponses([]*services.Response{
		{ParticipantID: "p1", ItemID: "i1", RawValue: 2, ScoreValue: 2, SubmittedAt: now},
		{ParticipantID: "p1", ItemID: "i2", RawValue: 1, ScoreValue: 5, SubmittedAt: now},
	}))

	sc, err := s.GetScale("s1")
	require.NoError(t, err)
	assert.Equal(t, 5, sc.Points)
	assert.True(t, sc.CreatedAt.Equal(now))

	missing, err := s.GetScale("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	items, err := s.ListItems("s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "i1", items[0].ID)
	assert.Equal(t, "first", items[0].Stem)
	assert.True(t, items[1].ReverseScored)

	rs, err := s.ListResponsesByScale("s1")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, 5, rs[1].ScoreValue)

	// Unknown participant violates the foreign key.
	err = s.AddResponses([]*services.Response{{ParticipantID: "ghost", ItemID: "i1", RawValue: 1, ScoreValue: 1, SubmittedAt: now}})
	assert.Error(t, err)
}

func TestAnalysts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddAnalyst(&services.Analyst{ID: "a1", Email: "a@example.com", PassHash: []byte("hash"), CreatedAt: time.Now()}))
	a, err := s.FindAnalystByEmail("a@example.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, []byte("hash"), a.PassHash)
	assert.Error(t, s.AddAnalyst(&services.Analyst{ID: "a2", Email: "a@example.com", PassHash: []byte("x"), CreatedAt: time.Now()}))
	none, err := s.FindAnalystByEmail("b@example.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCalibrationRuns(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2"} {
		run := &services.CalibrationRun{
			ID: id, ScaleID: "s1", Source: grm.SourceVariational, Status: services.RunSucceeded,
			People: 10, Items: 4, Dimensions: 1, Categories: 5, FinalLoss: 12.5, Alpha: 0.8,
			StartedAt: start.Add(time.Duration(i) * time.Minute), CompletedAt: start.Add(time.Hour),
		}
		require.NoError(t, s.SaveCalibrationRun(run))
	}
	got, err := s.GetCalibrationRun("r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.5, got.FinalLoss)
	assert.Equal(t, "s1", got.ScaleID)
	assert.Empty(t, got.Error)

	runs, err := s.ListCalibrationRuns("s1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)

	none, err := s.GetCalibrationRun("zzz")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestImportAndCalibrateFromStore(t *testing.T) {
	s := newTestStore(t)
	x, err := grm.NewResponseMatrix([][]int{{0, 1, 2}, {2, grm.Missing, 1}}, 3)
	require.NoError(t, err)
	sc, err := services.ImportMatrix(s, "imported", x)
	require.NoError(t, err)

	items, err := s.ListItems(sc.ID)
	require.NoError(t, err)
	responses, err := s.ListResponsesByScale(sc.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 5)

	back, err := services.MatrixFromResponses(sc, items, responses)
	require.NoError(t, err)
	assert.Equal(t, 2, back.People)
	assert.Equal(t, 3, back.Items)
}
