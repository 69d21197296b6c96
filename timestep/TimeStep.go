// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended. An episode may end either by
// reaching a terminal state intrinsic to the task (termination) or by
// exceeding some step budget (truncation).
type EndType int

const (
	// Unknown is the EndType of any TimeStep which is not the last
	// TimeStep in an episode
	Unknown EndType = iota

	// TerminalStateReached denotes the episode was terminated by
	// reaching a terminal state of the task
	TerminalStateReached

	// Timeout denotes the episode was truncated by a step limit
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int

	end EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{StepType: t, Reward: r, Discount: d, Observation: o,
		Number: n}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd marks the TimeStep as the last in the episode, ending the
// episode with the argument EndType
func (t *TimeStep) SetEnd(e EndType) {
	t.StepType = Last
	t.end = e
}

// EndType returns how the episode ended. If the TimeStep is not the
// last in the episode, Unknown is returned.
func (t TimeStep) EndType() EndType {
	if !t.Last() {
		return Unknown
	}
	return t.end
}

// Terminated returns whether the episode ended by reaching a terminal
// state of the task
func (t TimeStep) Terminated() bool {
	return t.EndType() == TerminalStateReached
}

// Truncated returns whether the episode ended by exceeding a step limit
func (t TimeStep) Truncated() bool {
	return t.EndType() == Timeout
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  End: %v  |  Reward:  %.2f  |  " +
		"Discount: %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.EndType(), t.Reward, t.Discount,
		t.Number)
}

// Transition implements a single (S, A, R, γ, S', A') tuple
type Transition struct {
	State      *mat.VecDense
	Action     *mat.VecDense
	Reward     float64
	Discount   float64
	NextState  *mat.VecDense
	NextAction *mat.VecDense
}

// NewTransition creates and returns a new transition from step to
// nextStep. The discount is taken from nextStep so that transitions
// into terminal states can be given a discount of 0 by the caller.
func NewTransition(step TimeStep, action *mat.VecDense, nextStep TimeStep,
	nextAction *mat.VecDense) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
	}
}
