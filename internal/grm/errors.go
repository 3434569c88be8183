package grm

import "errors"

var (
	ErrInvalidResponse   = errors.New("grm: response code out of range")
	ErrInsufficientData  = errors.New("grm: not enough complete response rows")
	ErrShapeMismatch     = errors.New("grm: shape mismatch")
	ErrCyclicPrior       = errors.New("grm: prior dependency graph is not topologically ordered")
	ErrCalibrationFailed = errors.New("grm: calibration produced non-finite estimates")
	ErrNotCalibrated     = errors.New("grm: model has not been calibrated")
)
