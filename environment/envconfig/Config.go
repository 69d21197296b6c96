// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are serializable, and creating an
// environment twice from the same Config returns two independent
// environments.
package envconfig

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/starla/dqnstop/environment"
	"github.com/starla/dqnstop/environment/classiccontrol/mountaincar"
	ts "github.com/starla/dqnstop/timestep"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	MountainCar EnvName = "MountainCar"
)

// TaskName stores the tasks that can be configured with this package.
// Note that not all tasks can be used with all environments. The tasks
// that can be used with each environment are as follows:
//
//	Environment			Task
//	MountainCar			Goal
type TaskName string

// Tasks available for configuration
const (
	Goal TaskName = "Goal"
)

// Config implements a specific configuration of a specific environment
// and specific task. Not all environments can have all tasks.
type Config struct {
	Environment   EnvName  `mapstructure:"environment" json:"environment"`
	Task          TaskName `mapstructure:"task" json:"task"`
	EpisodeCutoff int      `mapstructure:"episode_cutoff" json:"episode_cutoff"`
	Discount      float64  `mapstructure:"discount" json:"discount"`
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, taskName TaskName, episodeCutoff int,
	discount float64) Config {
	return Config{
		Environment:   envName,
		Task:          taskName,
		EpisodeCutoff: episodeCutoff,
		Discount:      discount,
	}
}

// Default returns the Config of the standard Mountain Car goal task
func Default() Config {
	return NewConfig(MountainCar, Goal, mountaincar.EpisodeCutoff, 1.0)
}

// Validate returns an error describing why the Config is invalid, or
// nil if the Config is valid
func (c Config) Validate() error {
	if c.EpisodeCutoff <= 0 {
		return fmt.Errorf("validate: episode cutoff must be positive "+
			"\n\twant(>0) \n\thave(%v)", c.EpisodeCutoff)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Discount)
	}
	return nil
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "create")
	}

	switch c.Environment {
	case MountainCar:
		return CreateMountainCar(c.Task, c.EpisodeCutoff, seed, c.Discount)
	}

	return nil, ts.TimeStep{}, fmt.Errorf("create: cannot create "+
		"environment %v, no such environment", c.Environment)
}

// CreateMountainCar is a factory for creating the discrete action
// MountainCar environment with default physical parameters and default
// task parameters.
func CreateMountainCar(taskName TaskName, cutoff int, seed uint64,
	discount float64) (env.Environment, ts.TimeStep, error) {
	position := r1.Interval{Min: -0.6, Max: -0.4}
	velocity := r1.Interval{Min: 0.0, Max: 0.0}

	s := env.NewUniformStarter([]r1.Interval{position, velocity}, seed)

	var task env.Task
	switch taskName {
	case Goal:
		task = mountaincar.NewGoal(s, cutoff, mountaincar.GoalPosition,
			mountaincar.GoalVelocity)

	default:
		return nil, ts.TimeStep{}, fmt.Errorf("createMountainCar: "+
			"MountainCar environment has no task %v", taskName)
	}

	m, firstStep, err := mountaincar.NewDiscrete(task, discount)
	if err != nil {
		return nil, ts.TimeStep{}, err
	}
	return m, firstStep, nil
}
