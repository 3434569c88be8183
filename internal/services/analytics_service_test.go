package services

import (
	"testing"
	"time"
)

type stubAnalyticsStore struct {
	scale     *Scale
	items     []*Item
	responses []*Response
	runs      map[string]*CalibrationRun
}

func (s *stubAnalyticsStore) GetScale(id string) (*Scale, error) {
	if s.scale != nil && s.scale.ID == id {
		copy := *s.scale
		return &copy, nil
	}
	return nil, nil
}

func (s *stubAnalyticsStore) ListItems(scaleID string) ([]*Item, error) {
	out := []*Item{}
	for _, it := range s.items {
		if it.ScaleID == scaleID {
			copy := *it
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubAnalyticsStore) ListResponsesByScale(scaleID string) ([]*Response, error) {
	out := []*Response{}
	for _, r := range s.responses {
		if r.ItemID != "" {
			copy := *r
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubAnalyticsStore) SaveCalibrationRun(run *CalibrationRun) error {
	if s.runs == nil {
		s.runs = map[string]*CalibrationRun{}
	}
	copy := *run
	s.runs[run.ID] = &copy
	return nil
}

func (s *stubAnalyticsStore) GetCalibrationRun(id string) (*CalibrationRun, error) {
	if r, ok := s.runs[id]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, nil
}

func TestAnalyticsSummary(t *testing.T) {
	at := time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC)
	store := &stubAnalyticsStore{
		scale: &Scale{ID: "S1", Points: 5},
		items: []*Item{
			{ID: "I1", ScaleID: "S1", Position: 1},
			{ID: "I2", ScaleID: "S1", Position: 2, ReverseScored: true},
		},
		responses: []*Response{
			{ParticipantID: "P1", ItemID: "I1", ScoreValue: 3, SubmittedAt: at},
			{ParticipantID: "P1", ItemID: "I2", ScoreValue: 4, SubmittedAt: at},
			{ParticipantID: "P2", ItemID: "I1", ScoreValue: 5, SubmittedAt: at},
		},
	}
	summary, err := NewAnalyticsService(store).Summary("S1")
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if summary.TotalResponses != 3 {
		t.Fatalf("expected 3 responses, got %d", summary.TotalResponses)
	}
	if len(summary.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(summary.Items))
	}
	if summary.Items[0].Total != 2 || summary.Items[0].Histogram[2] != 1 || summary.Items[0].Histogram[4] != 1 {
		t.Fatalf("unexpected histogram: %+v", summary.Items[0])
	}
	if !summary.Items[1].Reverse || summary.Items[1].Total != 1 {
		t.Fatalf("unexpected second item: %+v", summary.Items[1])
	}
	if summary.N != 1 {
		t.Fatalf("expected 1 complete respondent, got %d", summary.N)
	}
}

func TestAnalyticsAlpha(t *testing.T) {
	store := &stubAnalyticsStore{
		scale: &Scale{ID: "S1", Points: 5},
		items: []*Item{{ID: "I1", ScaleID: "S1"}, {ID: "I2", ScaleID: "S1"}},
		responses: []*Response{
			{ParticipantID: "P1", ItemID: "I1", ScoreValue: 1},
			{ParticipantID: "P1", ItemID: "I2", ScoreValue: 1},
			{ParticipantID: "P2", ItemID: "I1", ScoreValue: 3},
			{ParticipantID: "P2", ItemID: "I2", ScoreValue: 3},
			{ParticipantID: "P3", ItemID: "I1", ScoreValue: 5},
			{ParticipantID: "P3", ItemID: "I2", ScoreValue: 5},
		},
	}
	alpha, n, err := NewAnalyticsService(store).Alpha("S1")
	if err != nil {
		t.Fatalf("Alpha error: %v", err)
	}
	if n != 3 || alpha < 0.999 {
		t.Fatalf("expected alpha ~1 over 3 rows, got %f over %d", alpha, n)
	}
}

func TestAnalyticsMissingScale(t *testing.T) {
	_, err := NewAnalyticsService(&stubAnalyticsStore{}).Summary("nope")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
