// Package solver implements functionality to configure Gorgonia Solvers
// so that they can be described in configuration files.
package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Config describes a configuration of a Gorgonia Solver. Fields which
// do not apply to the solver Type are ignored.
type Config struct {
	Type         Type    `mapstructure:"type"`
	LearningRate float64 `mapstructure:"learning_rate"`

	// Clip clips each gradient component to [-Clip, Clip]. A value of 0
	// disables clipping.
	Clip float64 `mapstructure:"clip"`

	// Adam hyperparameters
	Epsilon float64 `mapstructure:"epsilon"`
	Beta1   float64 `mapstructure:"beta1"`
	Beta2   float64 `mapstructure:"beta2"`
}

// NewDefaultAdam returns the Config of an Adam solver with default
// hyperparameters
func NewDefaultAdam(learningRate float64) Config {
	return Config{
		Type:         Adam,
		LearningRate: learningRate,
		Epsilon:      1e-8,
		Beta1:        0.9,
		Beta2:        0.999,
	}
}

// NewVanilla returns the Config of a vanilla gradient descent solver
func NewVanilla(learningRate float64) Config {
	return Config{Type: Vanilla, LearningRate: learningRate}
}

// Validate returns an error describing why the Config is invalid, or
// nil if the Config is valid
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("validate: learning rate must be positive "+
			"\n\twant(>0) \n\thave(%v)", c.LearningRate)
	}
	if c.Clip < 0 {
		return fmt.Errorf("validate: clip must be non-negative "+
			"\n\thave(%v)", c.Clip)
	}

	switch c.Type {
	case Adam:
		if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
			return fmt.Errorf("validate: Adam betas must be in [0, 1) "+
				"\n\thave(%v, %v)", c.Beta1, c.Beta2)
		}
	case Vanilla:
	default:
		return fmt.Errorf("validate: no such solver type %v", c.Type)
	}
	return nil
}

// Create returns a new Gorgonia Solver as described by the Config
func (c Config) Create() (G.Solver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts := []G.SolverOpt{G.WithLearnRate(c.LearningRate)}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}

	switch c.Type {
	case Adam:
		opts = append(opts, G.WithBeta1(c.Beta1), G.WithBeta2(c.Beta2))
		if c.Epsilon > 0 {
			opts = append(opts, G.WithEps(c.Epsilon))
		}
		return G.NewAdamSolver(opts...), nil
	}
	return G.NewVanillaSolver(opts...), nil
}
