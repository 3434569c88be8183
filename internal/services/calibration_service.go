package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/mcmc"
	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/soaringjerry/synapirt/internal/vi"
)

type CalibrationStore interface {
	GetScale(id string) (*Scale, error)
	ListItems(scaleID string) ([]*Item, error)
	ListResponsesByScale(scaleID string) ([]*Response, error)
	SaveCalibrationRun(run *CalibrationRun) error
	GetCalibrationRun(id string) (*CalibrationRun, error)
}

// Schedule is a full calibration recipe: model variant, variational passes
// run in order on one surrogate, and an optional MCMC refinement.
type Schedule struct {
	Family grm.Family
	Model  grm.Config
	Passes []vi.Config
	MCMC   *mcmc.Config
	Draws  int
	Seed   uint64
}

// DefaultSchedule runs two variational passes, the second at a smaller
// learning rate, and no MCMC.
func DefaultSchedule() Schedule {
	first := vi.DefaultConfig()
	second := vi.DefaultConfig()
	second.LearningRate = 1e-2
	return Schedule{
		Family: grm.FamilyGraded,
		Model:  grm.DefaultConfig(),
		Passes: []vi.Config{first, second},
		Draws:  grm.DefaultDraws,
		Seed:   1,
	}
}

func (s Schedule) validate() error {
	if len(s.Passes) == 0 {
		return NewInvalidError("at least one variational pass is required")
	}
	if err := s.Model.Validate(); err != nil {
		return NewInvalidError(err.Error())
	}
	for i, p := range s.Passes {
		if err := p.Validate(); err != nil {
			return NewInvalidError(fmt.Sprintf("pass %d: %v", i+1, err))
		}
	}
	if s.MCMC != nil {
		if err := s.MCMC.Validate(); err != nil {
			return NewInvalidError(err.Error())
		}
	}
	return nil
}

// CalibrationResult pairs a persisted run with its in-memory estimates.
// Calibration is nil for runs loaded from storage after a restart.
type CalibrationResult struct {
	Run         *CalibrationRun
	Calibration *grm.Calibration
	Draws       int
}

type CalibrationService struct {
	store  CalibrationStore
	logger *slog.Logger
	now    func() time.Time
	idGen  func() string

	mu      sync.RWMutex
	results map[string]*CalibrationResult
}

// NewCalibrationService returns a service; store may be nil when runs are
// not persisted.
func NewCalibrationService(store CalibrationStore, logger *slog.Logger) *CalibrationService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CalibrationService{
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   uuid.NewString,
		results: map[string]*CalibrationResult{},
	}
}

// CalibrateScale fits the model to every stored response of a scale.
func (s *CalibrationService) CalibrateScale(ctx context.Context, scaleID string, sched Schedule) (*CalibrationResult, error) {
	if s.store == nil {
		return nil, NewInvalidError("no store configured")
	}
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
	if sched.Model.Categories == 0 {
		sched.Model.Categories = sc.Points
	}
	return s.calibrate(ctx, scaleID, x, sched)
}

// CalibrateMatrix fits the model to an in-memory response matrix.
func (s *CalibrationService) CalibrateMatrix(ctx context.Context, x *grm.ResponseMatrix, sched Schedule) (*CalibrationResult, error) {
	return s.calibrate(ctx, "", x, sched)
}

func (s *CalibrationService) calibrate(ctx context.Context, scaleID string, x *grm.ResponseMatrix, sched Schedule) (*CalibrationResult, error) {
	if err := sched.validate(); err != nil {
		return nil, err
	}
	alpha, _ := AlphaFromMatrix(x)
	run := &CalibrationRun{
		ID:         s.idGen(),
		ScaleID:    scaleID,
		People:     x.People,
		Items:      x.Items,
		Dimensions: sched.Model.Dimensions,
		Alpha:      alpha,
		StartedAt:  s.now(),
	}
	logger := s.logger.With("run", run.ID)
	logger.Info("calibration started", "people", x.People, "items", x.Items, "passes", len(sched.Passes), "mcmc", sched.MCMC != nil)

	cal, err := fitSchedule(ctx, x, sched, logger)
	run.CompletedAt = s.now()
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		s.record(run, nil, 0)
		calibrationsTotal.WithLabelValues("none", RunFailed).Inc()
		logger.Warn("calibration failed", "error", err)
		return nil, classify(err)
	}
	run.Status = RunSucceeded
	run.Source = cal.Source
	run.Categories = cal.Cutpoints.Levels + 1
	if len(cal.Loss) > 0 {
		run.FinalLoss = cal.Loss[len(cal.Loss)-1]
	}
	res := s.record(run, cal, sched.Draws)
	calibrationsTotal.WithLabelValues(cal.Source, RunSucceeded).Inc()
	calibrationDuration.WithLabelValues(cal.Source).Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	calibrationLoss.Set(run.FinalLoss)
	logger.Info("calibration finished", "source", cal.Source, "final_loss", run.FinalLoss, "alpha", alpha)
	return res, nil
}

func (s *CalibrationService) record(run *CalibrationRun, cal *grm.Calibration, draws int) *CalibrationResult {
	if s.store != nil {
		if err := s.store.SaveCalibrationRun(run); err != nil {
			s.logger.Error("save calibration run", "run", run.ID, "error", err)
		}
	}
	res := &CalibrationResult{Run: run, Calibration: cal, Draws: draws}
	if cal != nil {
		s.mu.Lock()
		s.results[run.ID] = res
		s.mu.Unlock()
	}
	return res
}

// Get returns a run by id, with estimates when they are still in memory.
func (s *CalibrationService) Get(id string) (*CalibrationResult, error) {
	s.mu.RLock()
	res, ok := s.results[id]
	s.mu.RUnlock()
	if ok {
		return res, nil
	}
	if s.store != nil {
		run, err := s.store.GetCalibrationRun(id)
		if err != nil {
			return nil, err
		}
		if run != nil {
			return &CalibrationResult{Run: run}, nil
		}
	}
	return nil, NewNotFoundError("calibration not found")
}

// RunLister is implemented by stores that can list past runs.
type RunLister interface {
	ListCalibrationRuns(scaleID string) ([]*CalibrationRun, error)
}

// History lists the stored runs of a scale, newest first.
func (s *CalibrationService) History(scaleID string) ([]*CalibrationRun, error) {
	lister, ok := s.store.(RunLister)
	if !ok {
		return nil, NewInvalidError("run history is not available")
	}
	return lister.ListCalibrationRuns(scaleID)
}

func (s *CalibrationService) calibration(id string) (*CalibrationResult, error) {
	res, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if res.Calibration == nil {
		return nil, NewConflictError("calibration estimates are no longer in memory")
	}
	return res, nil
}

// Score estimates trait posteriors for new respondents against a stored
// calibration.
func (s *CalibrationService) Score(id string, x *grm.ResponseMatrix, seed uint64) (*grm.Scores, error) {
	res, err := s.calibration(id)
	if err != nil {
		return nil, err
	}
	scorer, err := res.Calibration.Scorer(res.Draws)
	if err != nil {
		return nil, classify(err)
	}
	scores, err := scorer.Score(x, prob.NewRand(seed))
	if err != nil {
		return nil, classify(err)
	}
	scoredRespondents.Add(float64(x.People))
	for _, ess := range scores.ESS {
		scoringESS.Observe(ess)
	}
	return scores, nil
}

// Categories returns K for a calibration held in memory.
func (s *CalibrationService) Categories(id string) (int, error) {
	res, err := s.calibration(id)
	if err != nil {
		return 0, err
	}
	return res.Calibration.Cutpoints.Levels + 1, nil
}

// Export renders "traits" or "items" as CSV.
func (s *CalibrationService) Export(id, format string) ([]byte, error) {
	res, err := s.calibration(id)
	if err != nil {
		return nil, err
	}
	switch format {
	case "", "traits":
		return ExportTraitsCSV(res.Calibration)
	case "items":
		return ExportItemsCSV(res.Calibration)
	default:
		return nil, NewInvalidError("unsupported format")
	}
}

// fitSchedule runs every pass of sched on a fresh model and returns the
// last calibration.
func fitSchedule(ctx context.Context, x *grm.ResponseMatrix, sched Schedule, logger *slog.Logger) (*grm.Calibration, error) {
	model, err := grm.New(sched.Family, sched.Model, x, logger)
	if err != nil {
		return nil, err
	}
	rng := prob.NewRand(sched.Seed)
	var cal *grm.Calibration
	for i, pass := range sched.Passes {
		if cal, err = model.FitVariational(ctx, pass, rng); err != nil {
			return nil, fmt.Errorf("variational pass %d: %w", i+1, err)
		}
		logger.Debug("variational pass done", "pass", i+1, "final_loss", cal.Loss[len(cal.Loss)-1])
	}
	if sched.MCMC != nil {
		if cal, err = model.FitMCMC(ctx, *sched.MCMC, rng); err != nil {
			return nil, fmt.Errorf("mcmc: %w", err)
		}
	}
	return cal, nil
}

// classify maps model errors onto service errors.
func classify(err error) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, grm.ErrInvalidResponse),
		errors.Is(err, grm.ErrShapeMismatch),
		errors.Is(err, grm.ErrInsufficientData):
		return NewInvalidError(err.Error())
	case errors.Is(err, grm.ErrCalibrationFailed):
		return NewUnprocessableError(err.Error())
	}
	return err
}
