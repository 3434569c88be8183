package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/mcmc"
	"github.com/soaringjerry/synapirt/internal/services"
)

// calibrateRequest selects either a stored scale or an inline matrix.
// Inline codes are 0-based; negative codes are missing.
type calibrateRequest struct {
	ScaleID    string   `json:"scale_id"`
	Responses  [][]int  `json:"responses"`
	PersonIDs  []string `json:"person_ids"`
	ItemIDs    []string `json:"item_ids"`
	Family     string   `json:"family"`
	Dimensions int      `json:"dimensions"`
	Categories int      `json:"categories"`
	Auxiliary  *bool    `json:"auxiliary"`
	Weighting  string   `json:"weighting"`
	Exponent   float64  `json:"weight_exponent"`
	Steps      int      `json:"steps"`
	MCMC       bool     `json:"mcmc"`
	Draws      int      `json:"draws"`
	Seed       *uint64  `json:"seed"`
}

// schedule applies the request overrides to a copy of base.
func (req calibrateRequest) schedule(base services.Schedule) (services.Schedule, error) {
	sched := base
	sched.Passes = append(sched.Passes[:0:0], base.Passes...)
	family, err := grm.ParseFamily(req.Family)
	if err != nil {
		return sched, services.NewInvalidError(err.Error())
	}
	sched.Family = family
	if req.Dimensions > 0 {
		sched.Model.Dimensions = req.Dimensions
	}
	if req.Categories > 0 {
		sched.Model.Categories = req.Categories
	}
	if req.Auxiliary != nil {
		sched.Model.Auxiliary = *req.Auxiliary
	}
	if req.Weighting != "" {
		w, err := grm.ParseWeighting(req.Weighting, req.Exponent)
		if err != nil {
			return sched, services.NewInvalidError(err.Error())
		}
		sched.Model.Weighting = w
	}
	if req.Steps > 0 {
		for i := range sched.Passes {
			sched.Passes[i].Steps = req.Steps
		}
	}
	if req.MCMC && sched.MCMC == nil {
		cfg := mcmc.DefaultConfig()
		sched.MCMC = &cfg
	}
	if req.Draws > 0 {
		sched.Draws = req.Draws
	}
	if req.Seed != nil {
		sched.Seed = *req.Seed
	}
	return sched, nil
}

type calibrationView struct {
	Run         *services.CalibrationRun `json:"run"`
	InMemory    bool                     `json:"in_memory"`
	Weighting   string                   `json:"weighting,omitempty"`
	LossHistory int                      `json:"loss_history,omitempty"`
}

func viewOf(res *services.CalibrationResult) calibrationView {
	v := calibrationView{Run: res.Run, InMemory: res.Calibration != nil}
	if res.Calibration != nil {
		v.Weighting = res.Calibration.Weighting.Name()
		v.LossHistory = len(res.Calibration.Loss)
	}
	return v
}

// POST /api/calibrations
func (rt *Router) handleCalibrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sched, err := req.schedule(rt.schedule)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var res *services.CalibrationResult
	switch {
	case req.ScaleID != "" && len(req.Responses) > 0:
		err = services.NewInvalidError("give either scale_id or responses, not both")
	case req.ScaleID != "":
		res, err = rt.calibrations.CalibrateScale(r.Context(), req.ScaleID, sched)
	case len(req.Responses) > 0:
		var x *grm.ResponseMatrix
		if x, err = responseMatrix(req.Responses, req.Categories, req.PersonIDs, req.ItemIDs); err == nil {
			res, err = rt.calibrations.CalibrateMatrix(r.Context(), x, sched)
		}
	default:
		err = services.NewInvalidError("scale_id or responses required")
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(res))
}

// GET /api/calibrations/{id}
// GET /api/calibrations/{id}/export?format=traits|items
// POST /api/calibrations/{id}/score
func (rt *Router) handleCalibrationScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/calibrations/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		res, err := rt.calibrations.Get(id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(res))
	case action == "export" && r.Method == http.MethodGet:
		format := r.URL.Query().Get("format")
		data, err := rt.calibrations.Export(id, format)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		if format == "" {
			format = "traits"
		}
		writeCSV(w, id+"_"+format+".csv", data)
	case action == "score" && r.Method == http.MethodPost:
		rt.handleScore(w, r, id)
	case action == "" || action == "export" || action == "score":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

type scoredPerson struct {
	ID         string    `json:"id"`
	Mean       []float64 `json:"mean"`
	SD         []float64 `json:"sd"`
	ESS        float64   `json:"ess"`
	LogWeights []float64 `json:"log_weights,omitempty"`
}

// handleScore scores new respondents; ?format=csv returns a CSV file and
// ?diagnostics=1 adds the raw importance weights and proposal draws.
func (rt *Router) handleScore(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Responses [][]int  `json:"responses"`
		PersonIDs []string `json:"person_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seed, err := queryUint(r, "seed", 1)
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("seed must be an unsigned integer"))
		return
	}
	diagnostics, err := queryBool(r, "diagnostics")
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("diagnostics must be a boolean"))
		return
	}
	categories, err := rt.calibrations.Categories(id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	x, err := responseMatrix(req.Responses, categories, req.PersonIDs, nil)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	scores, err := rt.calibrations.Score(id, x, seed)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		data, err := services.ExportScoresCSV(req.PersonIDs, scores)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeCSV(w, id+"_scores.csv", data)
		return
	}
	out := make([]scoredPerson, x.People)
	for n := range out {
		out[n] = scoredPerson{
			ID:   personID(req.PersonIDs, n),
			Mean: scores.Mean.RawRowView(n),
			SD:   scores.SD.RawRowView(n),
			ESS:  scores.ESS[n],
		}
		if diagnostics {
			out[n].LogWeights = scores.LogWeights.RawRowView(n)
		}
	}
	body := map[string]any{"calibration_id": id, "scores": out}
	if diagnostics {
		draws, _ := scores.Samples.Dims()
		samples := make([][]float64, draws)
		for s := range samples {
			samples[s] = scores.Samples.RawRowView(s)
		}
		body["samples"] = samples
	}
	writeJSON(w, http.StatusOK, body)
}

func personID(ids []string, n int) string {
	if n < len(ids) {
		return ids[n]
	}
	return strconv.Itoa(n)
}
