// Package mountaincar implements the discrete action classic control
// environment "Mountain Car"
package mountaincar

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/starla/dqnstop/environment"
	ts "github.com/starla/dqnstop/timestep"
	"github.com/starla/dqnstop/utils/floatutils"
)

const (
	MinPosition float64 = -1.2
	MaxPosition float64 = 0.6
	MaxSpeed    float64 = 0.07
	Force       float64 = 0.001 // Engine power
	Gravity     float64 = 0.0025

	// Discrete Actions Env
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
	ActionDims        int = 1

	ObservationDims int = 2
)

// base implements the underlying Mountain Car environment. It tracks
// all the needed physical and environmental variables, and computes the
// next state given the force applied to the car.
//
// In Mountain Car, the environment state is continuous and consists of
// the car's x position and velocity. The x position and velocity are
// bounded by the constants defined in this package.
type base struct {
	env.Task
	positionBounds r1.Interval
	speedBounds    r1.Interval
	lastStep       ts.TimeStep
	discount       float64
	force          float64
	gravity        float64
}

// newBase creates a new base environment with the argument task
func newBase(t env.Task, discount float64) (*base, ts.TimeStep, error) {
	positionBounds := r1.Interval{Min: MinPosition, Max: MaxPosition}
	speedBounds := r1.Interval{Min: -MaxSpeed, Max: MaxSpeed}

	mountainCar := &base{
		Task:           t,
		positionBounds: positionBounds,
		speedBounds:    speedBounds,
		discount:       discount,
		force:          Force,
		gravity:        Gravity,
	}

	firstStep, err := mountainCar.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, err
	}

	return mountainCar, firstStep, nil
}

// ObservationSpec returns the observation specification of the
// environment
func (m *base) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims, []float64{
		m.positionBounds.Min, m.speedBounds.Min})
	upperBound := mat.NewVecDense(ObservationDims, []float64{
		m.positionBounds.Max, m.speedBounds.Max})

	return env.NewSpec(shape, env.Observation, lowerBound,
		upperBound, env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (m *base) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{m.discount})
	upperBound := mat.NewVecDense(1, []float64{m.discount})

	return env.NewSpec(shape, env.Discount, lowerBound,
		upperBound, env.Continuous)
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (m *base) Reset() (ts.TimeStep, error) {
	state := m.Start()
	if err := validateState(state, m.positionBounds, m.speedBounds); err != nil {
		return ts.TimeStep{}, errors.Wrap(err, "reset")
	}

	startStep := ts.New(ts.First, 0, m.discount, state, 0)
	m.lastStep = startStep

	return startStep, nil
}

// LastTimeStep returns the last TimeStep that occurred in the
// environment
func (m *base) LastTimeStep() ts.TimeStep {
	return m.lastStep
}

// nextState calculates the next state in the environment given the
// force applied to the car
func (m *base) nextState(force float64) *mat.VecDense {
	// Get the current state
	state := m.lastStep.Observation
	position, velocity := state.AtVec(0), state.AtVec(1)

	// Update the velocity
	velocity += force*m.force - m.gravity*math.Cos(3*position)
	velocity = floatutils.ClipInterval(velocity, m.speedBounds)

	// Update the position
	position += velocity
	position = floatutils.ClipInterval(position, m.positionBounds)

	// The left wall is inelastic
	if position <= m.positionBounds.Min && velocity < 0 {
		velocity = 0
	}

	return mat.NewVecDense(ObservationDims, []float64{position, velocity})
}

// update updates the base environment to change the last state to
// newState. This function also checks whether or not a TimeStep is the
// last in the episode using the Task, which also sets how the episode
// ended. This function returns the next TimeStep and whether or not
// this TimeStep is the last in the episode.
func (m *base) update(action, newState *mat.VecDense) (ts.TimeStep, bool) {
	reward := m.GetReward(m.lastStep.Observation, action, newState)
	nextStep := ts.New(ts.Mid, reward, m.discount, newState,
		m.lastStep.Number+1)

	// Check if the step is the last in the episode and adjust step type
	// if necessary
	m.End(&nextStep)

	m.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// String returns a string representation of the environment
func (m *base) String() string {
	str := "Mountain Car  |  Position: %v  |  Speed: %v"
	state := m.lastStep.Observation
	return fmt.Sprintf(str, state.AtVec(0), state.AtVec(1))
}

// validateState validates the state to ensure the position and speed
// are within the environmental limits
func validateState(s *mat.VecDense, positionBounds,
	speedBounds r1.Interval) error {
	if s.Len() != ObservationDims {
		return errors.Wrapf(env.ErrInvalidState, "state must have %v "+
			"features, have %v", ObservationDims, s.Len())
	}

	position := s.AtVec(0)
	if position < positionBounds.Min || position > positionBounds.Max {
		return errors.Wrapf(env.ErrInvalidState, "position %v ∉ [%v, %v]",
			position, positionBounds.Min, positionBounds.Max)
	}

	speed := s.AtVec(1)
	if speed < speedBounds.Min || speed > speedBounds.Max {
		return errors.Wrapf(env.ErrInvalidState, "speed %v ∉ [%v, %v]",
			speed, speedBounds.Min, speedBounds.Max)
	}
	return nil
}
