package vi

import "fmt"

// Config controls one variational fitting pass.
type Config struct {
	// Steps is the fixed iteration budget; there is no stopping rule.
	Steps int `yaml:"steps"`
	// SampleSize is the number of surrogate draws per ELBO estimate.
	SampleSize int `yaml:"sample_size"`
	// LearningRate is the initial Adam step size.
	LearningRate float64 `yaml:"learning_rate"`
	// DecayRate and DecaySteps define lr * DecayRate^floor(step/DecaySteps).
	DecayRate  float64 `yaml:"decay_rate"`
	DecaySteps int     `yaml:"decay_steps"`
	// ClipTarget bounds every component of each target log-density gradient.
	ClipTarget float64 `yaml:"clip_target"`
	// ClipValue bounds every component of the surrogate gradient.
	ClipValue float64 `yaml:"clip_value"`
	// MaxNonFinite consecutive non-finite steps abort the fit.
	MaxNonFinite int `yaml:"max_non_finite"`
	// InitScale is the surrogate's initial standard deviation.
	InitScale float64 `yaml:"init_scale"`
	// LogEvery controls progress logging; 0 disables it.
	LogEvery int `yaml:"log_every"`
}

func DefaultConfig() Config {
	return Config{
		Steps:        1000,
		SampleSize:   10,
		LearningRate: 5e-2,
		DecayRate:    0.99,
		DecaySteps:   10,
		ClipTarget:   10,
		ClipValue:    1,
		MaxNonFinite: 10,
		InitScale:    0.01,
		LogEvery:     100,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Steps < 1:
		return fmt.Errorf("vi: steps must be positive, got %d", c.Steps)
	case c.SampleSize < 1:
		return fmt.Errorf("vi: sample size must be positive, got %d", c.SampleSize)
	case c.LearningRate <= 0:
		return fmt.Errorf("vi: learning rate must be positive, got %v", c.LearningRate)
	case c.DecayRate <= 0 || c.DecayRate > 1:
		return fmt.Errorf("vi: decay rate must be in (0, 1], got %v", c.DecayRate)
	case c.DecaySteps < 1:
		return fmt.Errorf("vi: decay steps must be positive, got %d", c.DecaySteps)
	case c.ClipTarget <= 0 || c.ClipValue <= 0:
		return fmt.Errorf("vi: clip thresholds must be positive")
	case c.MaxNonFinite < 1:
		return fmt.Errorf("vi: max non-finite must be positive, got %d", c.MaxNonFinite)
	case c.InitScale <= 0:
		return fmt.Errorf("vi: init scale must be positive, got %v", c.InitScale)
	}
	return nil
}
