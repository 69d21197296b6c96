package mountaincar

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	env "github.com/starla/dqnstop/environment"
	ts "github.com/starla/dqnstop/timestep"
)

// Discrete implements the classic control Mountain Car environment.
// In this environment, the agent controls a car in a valley between two
// hills. The car is underpowered and cannot drive up the hill unless
// it rocks back and forth from hill to hill, using its momentum to
// gradually climb higher.
//
// State features consist of the x position of the car and its velocity.
// These features are bounded by the MinPosition, MaxPosition, and
// MaxSpeed constants defined in this package. The sign of the velocity
// feature denotes direction, with negative meaning that the car is
// travelling left and positive meaning that the car is travelling
// right. Upon reaching the minimum position, the velocity of the car
// is set to 0.
//
// Actions are 1-dimensional and discrete in (0, 1, 2). Actions
// determine in which direction to apply full accelerating force to the
// car:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Stepping with any other action returns an error wrapping
// environment.ErrInvalidAction.
type Discrete struct {
	*base
}

// NewDiscrete creates a new Discrete action Mountain Car environment
// with the argument task
func NewDiscrete(t env.Task, discount float64) (*Discrete, ts.TimeStep,
	error) {
	baseEnv, firstStep, err := newBase(t, discount)
	if err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "newDiscrete")
	}

	return &Discrete{baseEnv}, firstStep, nil
}

// ActionSpec returns the action specification of the environment
func (m *Discrete) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// Step takes one environmental step given action a and returns the next
// timestep as a timestep.TimeStep and a bool indicating whether or not
// the episode has ended. Legal actions are in the set {0, 1, 2}.
func (m *Discrete) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a == nil || !m.ActionSpec().Contains(a) {
		return ts.TimeStep{}, false, errors.Wrapf(env.ErrInvalidAction,
			"step: %v ∉ {0, 1, 2}", formatAction(a))
	}
	action := a.AtVec(0)

	// Calculate the force and the next state given the force
	force := action - 1.0
	newState := m.nextState(force)

	nextStep, last := m.update(a, newState)
	return nextStep, last, nil
}

// formatAction formats an action for error messages
func formatAction(a *mat.VecDense) string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", mat.Formatted(a.T(), mat.Squeeze()))
}
