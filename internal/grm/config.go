package grm

import (
	"fmt"
	"math"
)

// Config selects the model variant. Start from DefaultConfig.
type Config struct {
	// Dimensions is the number of latent traits.
	Dimensions int
	// Categories is the number of ordered response levels K; 0 infers
	// K from the largest observed code.
	Categories int
	// Auxiliary selects the inverse-gamma auxiliary parameterization of the
	// shrinkage scales. Recommended for MCMC.
	Auxiliary bool
	// Weighting combines per-dimension category probabilities.
	Weighting Weighting
	// DimensionalDecay controls the dimension-level shrinkage scale
	// decay^-(d+2).
	DimensionalDecay float64
	// MinCompleteRows is the number of fully observed respondents the
	// initialization heuristic needs. 0 disables the check.
	MinCompleteRows int
}

func DefaultConfig() Config {
	return Config{
		Dimensions:       1,
		Auxiliary:        true,
		Weighting:        PowerWeighting{Exponent: 1},
		DimensionalDecay: 0.1,
		MinCompleteRows:  5,
	}
}

func (c Config) Validate() error {
	if c.Dimensions < 1 {
		return fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	}
	if c.Categories != 0 && c.Categories < 2 {
		return fmt.Errorf("categories must be at least 2, got %d", c.Categories)
	}
	if c.DimensionalDecay <= 0 || math.IsInf(c.DimensionalDecay, 0) || math.IsNaN(c.DimensionalDecay) {
		return fmt.Errorf("dimensional decay must be positive, got %v", c.DimensionalDecay)
	}
	if c.MinCompleteRows < 0 {
		return fmt.Errorf("min complete rows must be non-negative, got %d", c.MinCompleteRows)
	}
	if pw, ok := c.Weighting.(PowerWeighting); ok && pw.Exponent <= 0 {
		return fmt.Errorf("weight exponent must be positive, got %v", pw.Exponent)
	}
	return nil
}

func (c Config) weighting() Weighting {
	if c.Weighting == nil {
		return PowerWeighting{Exponent: 1}
	}
	return c.Weighting
}

// Shape holds the tensor dimensions of a model instance.
type Shape struct {
	People     int
	Items      int
	Dims       int
	Categories int
}

// Levels is the number of cutpoints per item and dimension.
func (s Shape) Levels() int { return s.Categories - 1 }

// Increments is the number of non-negative cutpoint gaps per item and dimension.
func (s Shape) Increments() int { return s.Categories - 2 }
