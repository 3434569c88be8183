package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid       ErrorCode = "invalid"
	ErrorNotFound      ErrorCode = "not_found"
	ErrorConflict      ErrorCode = "conflict"
	ErrorUnauthorized  ErrorCode = "unauthorized"
	ErrorUnprocessable ErrorCode = "unprocessable"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

// NewUnprocessableError reports data the model cannot be fitted to.
func NewUnprocessableError(msg string) error {
	return &ServiceError{Code: ErrorUnprocessable, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Scale is a Likert instrument. Points is the number of response options.
type Scale struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type Item struct {
	ID            string `json:"id"`
	ScaleID       string `json:"scale_id"`
	Stem          string `json:"stem,omitempty"`
	ReverseScored bool   `json:"reverse_scored"`
	Position      int    `json:"position"`
}

type Participant struct {
	ID       string `json:"id"`
	ScaleID  string `json:"scale_id"`
	External string `json:"external_id,omitempty"`
}

// Response is one answered item. RawValue is on the 1..Points scale;
// ScoreValue has reverse scoring applied.
type Response struct {
	ParticipantID string
	ItemID        string
	RawValue      int
	ScoreValue    int
	SubmittedAt   time.Time
}

type Analyst struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

// CalibrationRun is the persisted record of one calibration. Parameter
// estimates stay in memory; the run keeps only summaries.
type CalibrationRun struct {
	ID          string    `json:"id"`
	ScaleID     string    `json:"scale_id,omitempty"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	People      int       `json:"people"`
	Items       int       `json:"items"`
	Dimensions  int       `json:"dimensions"`
	Categories  int       `json:"categories"`
	FinalLoss   float64   `json:"final_loss"`
	Alpha       float64   `json:"alpha"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
