package services

type AnalyticsStore interface {
	GetScale(id string) (*Scale, error)
	ListItems(scaleID string) ([]*Item, error)
	ListResponsesByScale(scaleID string) ([]*Response, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

type AnalyticsItem struct {
	ID        string `json:"id"`
	Reverse   bool   `json:"reverse_scored"`
	Histogram []int  `json:"histogram"`
	Total     int    `json:"total"`
}

type AnalyticsSummary struct {
	ScaleID        string          `json:"scale_id"`
	Points         int             `json:"points"`
	TotalResponses int             `json:"total_responses"`
	Items          []AnalyticsItem `json:"items"`
	Alpha          float64         `json:"alpha"`
	N              int             `json:"n"`
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// Summary reports per-item category histograms on the 0-based code scale
// and Cronbach's alpha over complete respondents.
func (s *AnalyticsService) Summary(scaleID string) (*AnalyticsSummary, error) {
	sc, err := s.store.GetScale(scaleID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, NewNotFoundError("scale not found")
	}
	items, err := s.store.ListItems(scaleID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponsesByScale(scaleID)
	if err != nil {
		return nil, err
	}
	x, err := MatrixFromResponses(sc, items, responses)
	if err != nil {
		return nil, err
	}
	reverse := make(map[string]bool, len(items))
	for _, it := range items {
		reverse[it.ID] = it.ReverseScored
	}
	out := &AnalyticsSummary{ScaleID: scaleID, Points: sc.Points, TotalResponses: len(responses)}
	for i, id := range x.ItemIDs {
		ai := AnalyticsItem{ID: id, Reverse: reverse[id], Histogram: make([]int, x.Categories)}
		for n := 0; n < x.People; n++ {
			if c := x.At(n, i); c >= 0 {
				ai.Histogram[c]++
				ai.Total++
			}
		}
		out.Items = append(out.Items, ai)
	}
	out.Alpha, out.N = AlphaFromMatrix(x)
	return out, nil
}

func (s *AnalyticsService) Alpha(scaleID string) (float64, int, error) {
	summary, err := s.Summary(scaleID)
	if err != nil {
		return 0, 0, err
	}
	return summary.Alpha, summary.N, nil
}
