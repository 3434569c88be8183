package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/middleware"
	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/soaringjerry/synapirt/internal/services"
)

type memStore struct {
	mu           sync.Mutex
	scales       map[string]*services.Scale
	items        []*services.Item
	participants []*services.Participant
	responses    []*services.Response
	analysts     map[string]*services.Analyst
	runs         map[string]*services.CalibrationRun
}

func newMemStore() *memStore {
	return &memStore{
		scales:   map[string]*services.Scale{},
		analysts: map[string]*services.Analyst{},
		runs:     map[string]*services.CalibrationRun{},
	}
}

func (m *memStore) AddScale(sc *services.Scale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scales[sc.ID] = sc
	return nil
}

func (m *memStore) GetScale(id string) (*services.Scale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scales[id], nil
}

func (m *memStore) AddItem(it *services.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, it)
	return nil
}

func (m *memStore) ListItems(scaleID string) ([]*services.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*services.Item
	for _, it := range m.items {
		if it.ScaleID == scaleID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) AddParticipant(p *services.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = append(m.participants, p)
	return nil
}

func (m *memStore) AddResponses(rs []*services.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, rs...)
	return nil
}

func (m *memStore) ListResponsesByScale(scaleID string) ([]*services.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inScale := map[string]bool{}
	for _, it := range m.items {
		if it.ScaleID == scaleID {
			inScale[it.ID] = true
		}
	}
	var out []*services.Response
	for _, r := range m.responses {
		if inScale[r.ItemID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) FindAnalystByEmail(email string) (*services.Analyst, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analysts[email], nil
}

func (m *memStore) AddAnalyst(a *services.Analyst) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysts[a.Email] = a
	return nil
}

func (m *memStore) SaveCalibrationRun(run *services.CalibrationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) GetCalibrationRun(id string) (*services.CalibrationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id], nil
}

type testServer struct {
	*httptest.Server
	store *memStore
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	middleware.SetSecret("router-test")
	t.Cleanup(func() { middleware.SetSecret("") })

	store := newMemStore()
	auth := services.NewAuthService(store, middleware.SignToken)
	_, err := auth.CreateAnalyst("lab@example.org", "pw")
	require.NoError(t, err)

	sched := services.DefaultSchedule()
	for i := range sched.Passes {
		sched.Passes[i].Steps = 30
		sched.Passes[i].SampleSize = 2
		sched.Passes[i].LogEvery = 0
	}
	sched.Draws = 100
	rt := NewRouter(store, services.NewCalibrationService(store, nil), auth, sched, nil)
	srv := httptest.NewServer(rt.Handler([]string{"*"}))
	t.Cleanup(srv.Close)

	ts := &testServer{Server: srv, store: store}
	var login services.AuthResult
	resp := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "LAB@example.org", "password": "pw"}, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, login.Token)
	ts.token = login.Token
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func simulatedRows(t *testing.T, people, items int) [][]int {
	t.Helper()
	rng := prob.NewRand(5)
	abilities := make([]float64, people)
	for n := range abilities {
		abilities[n] = rng.NormFloat64()
	}
	alpha := make([]float64, items)
	base := make([]float64, items)
	inc := make([]float64, items)
	for i := range alpha {
		alpha[i] = 1.5
		base[i] = -0.8
		inc[i] = 1.2
	}
	cut, err := grm.BuildCutpoints(1, items, 3, base, inc)
	require.NoError(t, err)
	x, err := grm.Simulate(abilities, people, alpha, cut, nil, rng)
	require.NoError(t, err)
	rows := make([][]int, people)
	for n := range rows {
		rows[n] = append([]int(nil), x.Row(n)...)
	}
	return rows
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	var health map[string]any
	resp := ts.do(t, http.MethodGet, "/health", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, health["ok"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	var body map[string]string
	resp := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "lab@example.org", "password": "nope"}, &body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])
}

func TestCalibrationsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	resp := ts.do(t, http.MethodPost, "/api/calibrations", map[string]any{"responses": [][]int{{0, 1}}}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInlineCalibrationScoreAndExport(t *testing.T) {
	ts := newTestServer(t)
	rows := simulatedRows(t, 40, 5)

	var created calibrationView
	resp := ts.do(t, http.MethodPost, "/api/calibrations", map[string]any{"responses": rows[:30], "seed": 3}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, created.Run)
	assert.Equal(t, services.RunSucceeded, created.Run.Status)
	assert.Equal(t, 3, created.Run.Categories)
	assert.True(t, created.InMemory)
	assert.Equal(t, "power", created.Weighting)
	id := created.Run.ID

	var got calibrationView
	resp = ts.do(t, http.MethodGet, "/api/calibrations/"+id, nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, got.Run.ID)

	resp = ts.do(t, http.MethodGet, "/api/calibrations/"+id+"/export?format=items", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	var scored struct {
		Scores []scoredPerson `json:"scores"`
	}
	held := rows[30:]
	held[0][1] = grm.Missing
	resp = ts.do(t, http.MethodPost, "/api/calibrations/"+id+"/score?seed=9",
		map[string]any{"responses": held, "person_ids": []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}}, &scored)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, scored.Scores, 10)
	assert.Equal(t, "a", scored.Scores[0].ID)
	for _, s := range scored.Scores {
		require.Len(t, s.Mean, 1)
		assert.Greater(t, s.SD[0], 0.0)
		assert.Greater(t, s.ESS, 0.0)
	}

	assert.Empty(t, scored.Scores[0].LogWeights)

	var diag struct {
		Scores  []scoredPerson `json:"scores"`
		Samples [][]float64    `json:"samples"`
	}
	resp = ts.do(t, http.MethodPost, "/api/calibrations/"+id+"/score?diagnostics=1",
		map[string]any{"responses": held[:2]}, &diag)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, diag.Scores, 2)
	require.Len(t, diag.Samples, 100)
	assert.Len(t, diag.Samples[0], 1)
	assert.Len(t, diag.Scores[1].LogWeights, 100)

	resp = ts.do(t, http.MethodPost, "/api/calibrations/"+id+"/score?diagnostics=maybe",
		map[string]any{"responses": held[:1]}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Codes beyond the calibrated K are rejected.
	var bad map[string]string
	resp = ts.do(t, http.MethodPost, "/api/calibrations/"+id+"/score", map[string]any{"responses": [][]int{{0, 1, 2, 3, 0}}}, &bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/calibrations/"+id+"/export?format=pdf", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalibrationRequestValidation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty", map[string]any{}},
		{"both sources", map[string]any{"scale_id": "s", "responses": [][]int{{0, 1}}}},
		{"unknown family", map[string]any{"responses": [][]int{{0, 1}}, "family": "nominal"}},
		{"unknown weighting", map[string]any{"responses": [][]int{{0, 1}}, "weighting": "softmax"}},
		{"ragged rows", map[string]any{"responses": [][]int{{0, 1}, {1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/calibrations", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	resp := ts.do(t, http.MethodGet, "/api/calibrations/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, "/api/calibrations/unknown", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScaleWorkflow(t *testing.T) {
	ts := newTestServer(t)
	var sc services.Scale
	resp := ts.do(t, http.MethodPost, "/api/scales", map[string]any{"name": "Demo", "points": 3}, &sc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	const items = 4
	itemIDs := make([]string, items)
	for i := range itemIDs {
		var it services.Item
		resp = ts.do(t, http.MethodPost, "/api/items", map[string]any{"scale_id": sc.ID, "position": i, "reverse_scored": i == 3}, &it)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		itemIDs[i] = it.ID
	}

	rows := simulatedRows(t, 25, items)
	for n, row := range rows {
		answers := make([]map[string]any, 0, items)
		for i, c := range row {
			raw := c + 1
			if i == 3 {
				raw = services.ReverseScore(raw, 3)
			}
			answers = append(answers, map[string]any{"item_id": itemIDs[i], "raw_value": raw})
		}
		resp = ts.do(t, http.MethodPost, "/api/responses/bulk", map[string]any{
			"scale_id":    sc.ID,
			"participant": map[string]string{"external_id": fmt.Sprintf("r%d", n)},
			"answers":     answers,
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var alpha map[string]any
	resp = ts.do(t, http.MethodGet, "/api/metrics/alpha?scale_id="+sc.ID, nil, &alpha)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(25), alpha["n"])

	var summary services.AnalyticsSummary
	resp = ts.do(t, http.MethodGet, "/api/scales/"+sc.ID+"/summary", nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, summary.Items, items)
	assert.Equal(t, 25, summary.Items[0].Total)

	var created calibrationView
	resp = ts.do(t, http.MethodPost, "/api/calibrations", map[string]any{"scale_id": sc.ID}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, sc.ID, created.Run.ScaleID)
	assert.Equal(t, 25, created.Run.People)

	// memStore cannot list runs.
	resp = ts.do(t, http.MethodGet, "/api/scales/"+sc.ID+"/calibrations", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/responses/bulk", map[string]any{
		"scale_id": sc.ID,
		"answers":  []map[string]any{{"item_id": itemIDs[0], "raw_value": 7}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, strings.Contains(resp.Header.Get("Cache-Control"), "public"))
}
