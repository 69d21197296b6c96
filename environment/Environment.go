// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	ts "github.com/starla/dqnstop/timestep"
)

// ErrInvalidAction is returned when an environment is stepped with an
// action outside its action space
var ErrInvalidAction = errors.New("invalid action")

// ErrInvalidState is returned when an environment is placed into a
// state outside its state space
var ErrInvalidState = errors.New("invalid state")

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end. An Ender that ends an episode
// must mark the TimeStep as the last in the episode and set the
// appropriate timestep.EndType.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme and episode ending conditions for
// taking actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Vector) bool
	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a Task to
// complete.
//
// Step returns the next TimeStep and whether or not that TimeStep is
// the last in the episode. How the episode ended is recorded in the
// EndType of the returned TimeStep.
type Environment interface {
	Task
	Reset() (ts.TimeStep, error)
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)
	LastTimeStep() ts.TimeStep
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
