package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/middleware"
	"github.com/soaringjerry/synapirt/internal/services"
)

type Router struct {
	store        Store
	calibrations *services.CalibrationService
	analytics    *services.AnalyticsService
	auth         *services.AuthService
	schedule     services.Schedule
	logger       *slog.Logger
	now          func() time.Time
}

// NewRouter wires the HTTP handlers. schedule is the default recipe for
// calibration requests; requests may override parts of it.
func NewRouter(store Store, calibrations *services.CalibrationService, auth *services.AuthService, schedule services.Schedule, logger *slog.Logger) *Router {
	if logger == nil {
		logger = discard()
	}
	return &Router{
		store:        store,
		calibrations: calibrations,
		analytics:    services.NewAnalyticsService(store),
		auth:         auth,
		schedule:     schedule,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns a mux with every route behind the middleware stack.
func (rt *Router) Handler(origins []string) http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return middleware.Chain(mux,
		middleware.SecureHeaders,
		middleware.CORS(origins),
		middleware.NoStore,
		middleware.WithAuth,
	)
}

func (rt *Router) Register(mux *http.ServeMux) {
	protect := func(h http.HandlerFunc) http.Handler { return middleware.RequireAuth(h) }

	mux.HandleFunc("/api/auth/login", rt.handleLogin)                     // POST
	mux.HandleFunc("/api/responses/bulk", rt.handleBulkResponses)         // POST
	mux.HandleFunc("/api/metrics/alpha", rt.handleAlpha)                  // GET
	mux.Handle("/api/scales", protect(rt.handleScales))                   // POST
	mux.Handle("/api/items", protect(rt.handleItems))                     // POST
	mux.Handle("/api/scales/", protect(rt.handleScaleScoped))             // GET /api/scales/{id}/{items,summary,calibrations}
	mux.Handle("/api/calibrations", protect(rt.handleCalibrations))       // POST
	mux.Handle("/api/calibrations/", protect(rt.handleCalibrationScoped)) // GET {id}, GET {id}/export, POST {id}/score
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": "synapirt"})
	})
}

// POST /api/auth/login {email, password}
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/scales {name, points}
func (rt *Router) handleScales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var sc services.Scale
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(sc.Name) == "" {
		rt.writeError(w, r, services.NewInvalidError("name required"))
		return
	}
	if sc.Points == 0 {
		sc.Points = 5
	}
	if sc.Points < 2 {
		rt.writeError(w, r, services.NewInvalidError("points must be at least 2"))
		return
	}
	if sc.ID == "" {
		sc.ID = newID(8)
	}
	sc.CreatedAt = rt.now()
	if err := rt.store.AddScale(&sc); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// POST /api/items {scale_id, stem, reverse_scored, position}
func (rt *Router) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var it services.Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := rt.store.GetScale(it.ScaleID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if sc == nil {
		rt.writeError(w, r, services.NewNotFoundError("scale not found"))
		return
	}
	if it.ID == "" {
		it.ID = newID(8)
	}
	if err := rt.store.AddItem(&it); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// POST /api/responses/bulk
// { participant: {external_id?}, scale_id, answers: [{item_id, raw_value}] }
func (rt *Router) handleBulkResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Participant struct {
			External string `json:"external_id"`
		} `json:"participant"`
		ScaleID string `json:"scale_id"`
		Answers []struct {
			ItemID string `json:"item_id"`
			Raw    int    `json:"raw_value"`
		} `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := rt.store.GetScale(req.ScaleID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if sc == nil {
		rt.writeError(w, r, services.NewNotFoundError("scale not found"))
		return
	}
	items, err := rt.store.ListItems(sc.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	byID := make(map[string]*services.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	p := &services.Participant{ID: newID(12), ScaleID: sc.ID, External: req.Participant.External}
	now := rt.now()
	rs := make([]*services.Response, 0, len(req.Answers))
	for _, a := range req.Answers {
		it := byID[a.ItemID]
		if it == nil {
			continue
		}
		if a.Raw < 1 || a.Raw > sc.Points {
			rt.writeError(w, r, services.NewInvalidError("raw_value out of range for item "+a.ItemID))
			return
		}
		score := a.Raw
		if it.ReverseScored {
			score = services.ReverseScore(score, sc.Points)
		}
		rs = append(rs, &services.Response{ParticipantID: p.ID, ItemID: it.ID, RawValue: a.Raw, ScoreValue: score, SubmittedAt: now})
	}
	if err := rt.store.AddParticipant(p); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.store.AddResponses(rs); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "participant_id": p.ID, "count": len(rs)})
}

// GET /api/scales/{id}/items, /summary, /calibrations
func (rt *Router) handleScaleScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/scales/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "items":
		items, err := rt.store.ListItems(id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scale_id": id, "items": items})
	case "summary":
		summary, err := rt.analytics.Summary(id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	case "calibrations":
		runs, err := rt.calibrations.History(id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scale_id": id, "runs": runs})
	default:
		http.NotFound(w, r)
	}
}

// GET /api/metrics/alpha?scale_id=...
func (rt *Router) handleAlpha(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	scaleID := r.URL.Query().Get("scale_id")
	if scaleID == "" {
		rt.writeError(w, r, services.NewInvalidError("scale_id required"))
		return
	}
	alpha, n, err := rt.analytics.Alpha(scaleID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scale_id": scaleID, "alpha": alpha, "n": n})
}

func queryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// responseMatrix converts a JSON matrix; negative codes are missing.
func responseMatrix(rows [][]int, categories int, personIDs, itemIDs []string) (*grm.ResponseMatrix, error) {
	x, err := grm.NewResponseMatrix(rows, categories)
	if err != nil {
		return nil, services.NewInvalidError(err.Error())
	}
	if len(personIDs) > 0 && len(personIDs) != x.People {
		return nil, services.NewInvalidError("person_ids length does not match responses")
	}
	if len(itemIDs) > 0 && len(itemIDs) != x.Items {
		return nil, services.NewInvalidError("item_ids length does not match responses")
	}
	x.PersonIDs, x.ItemIDs = personIDs, itemIDs
	return x, nil
}
