package deepq

import (
	"fmt"

	"github.com/starla/dqnstop/initwfn"
	"github.com/starla/dqnstop/solver"
)

// Config implements a configuration for a DeepQ agent
type Config struct {
	PolicyLayers []int          `mapstructure:"policy_layers"` // Layer sizes in neural net
	Activations  []string       `mapstructure:"activations"`   // Activation of each layer
	InitWFn      initwfn.Config `mapstructure:"init_wfn"`
	Solver       solver.Config  `mapstructure:"solver"`

	Gamma float64 `mapstructure:"gamma"`

	// Loss applied to the TD errors. MaxGradNorm rescales each update
	// so that the global L2 norm of the gradient is at most
	// MaxGradNorm, with 0 disabling rescaling.
	Loss        LossType `mapstructure:"loss"`
	MaxGradNorm float64  `mapstructure:"max_grad_norm"`

	// Experience replay parameters
	BatchSize  int `mapstructure:"batch_size"`
	BufferSize int `mapstructure:"buffer_size"`

	// Training schedule. No updates are performed for the first
	// LearningStarts steps, after which GradientSteps updates are
	// performed every TrainFreq steps.
	LearningStarts int `mapstructure:"learning_starts"`
	TrainFreq      int `mapstructure:"train_freq"`
	GradientSteps  int `mapstructure:"gradient_steps"`

	// Target net updates
	Tau                  float64 `mapstructure:"tau"` // Polyak averaging constant
	TargetUpdateInterval int     `mapstructure:"target_update_interval"`

	// Behaviour policy epsilon, annealed linearly from
	// ExplorationInitialEps to ExplorationFinalEps over the first
	// ExplorationFraction of TotalSteps
	ExplorationFraction   float64 `mapstructure:"exploration_fraction"`
	ExplorationInitialEps float64 `mapstructure:"exploration_initial_eps"`
	ExplorationFinalEps   float64 `mapstructure:"exploration_final_eps"`
	TotalSteps            int     `mapstructure:"total_steps"`
}

// DefaultConfig returns the configuration used to train DeepQ on
// Mountain Car
func DefaultConfig() Config {
	return Config{
		PolicyLayers:          []int{256, 256},
		Activations:           []string{"relu", "relu"},
		InitWFn:               initwfn.Config{Type: initwfn.GlorotU, Gain: 1.0},
		Solver:                solver.NewDefaultAdam(4e-3),
		Gamma:                 0.99,
		Loss:                  Huber,
		MaxGradNorm:           10,
		BatchSize:             128,
		BufferSize:            10000,
		LearningStarts:        1000,
		TrainFreq:             16,
		GradientSteps:         8,
		Tau:                   1.0,
		TargetUpdateInterval:  600,
		ExplorationFraction:   0.2,
		ExplorationInitialEps: 1.0,
		ExplorationFinalEps:   0.07,
		TotalSteps:            90000,
	}
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations"+
			"\n\twant(%v) \n\thave(%v)", len(c.PolicyLayers),
			len(c.Activations))
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] \n\thave(%v)",
			c.Gamma)
	}

	if c.Loss != Huber && c.Loss != MSE {
		return fmt.Errorf("validate: no such loss %q \n\twant(%v|%v)",
			c.Loss, Huber, MSE)
	}

	if c.MaxGradNorm < 0 {
		return fmt.Errorf("validate: max gradient norm must be "+
			"non-negative \n\thave(%v)", c.MaxGradNorm)
	}

	if c.BatchSize <= 0 || c.BufferSize < c.BatchSize {
		return fmt.Errorf("validate: need 0 < batch size (%v) <= buffer "+
			"size (%v)", c.BatchSize, c.BufferSize)
	}

	if c.LearningStarts < 0 {
		return fmt.Errorf("validate: learning starts must be "+
			"non-negative \n\thave(%v)", c.LearningStarts)
	}

	if c.TrainFreq < 1 || c.GradientSteps < 1 {
		return fmt.Errorf("validate: train frequency and gradient steps "+
			"must be positive \n\thave(%v, %v)", c.TrainFreq, c.GradientSteps)
	}

	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: target networks must be updated at "+
			"positive timestep intervals \n\twant(>0) \n\thave(%v)",
			c.TargetUpdateInterval)
	}

	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in (0, 1] \n\thave(%v)",
			c.Tau)
	}

	for _, eps := range []float64{c.ExplorationInitialEps,
		c.ExplorationFinalEps} {
		if eps < 0 || eps > 1 {
			return fmt.Errorf("validate: exploration epsilon must be in "+
				"[0, 1] \n\thave(%v)", eps)
		}
	}

	if _, err := c.schedule(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	return c.Solver.Validate()
}

// schedule returns the exploration schedule described by the Config
func (c Config) schedule() (LinearSchedule, error) {
	return NewLinearSchedule(c.ExplorationInitialEps, c.ExplorationFinalEps,
		c.ExplorationFraction, c.TotalSteps)
}
