// Package agent defines an agent interface
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/starla/dqnstop/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action *mat.VecDense, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// RecurrentState is the hidden state carried between consecutive
// predictions of a recurrent policy. Non-recurrent policies ignore the
// state they are given and return nil.
type RecurrentState interface{}

// Predictor predicts actions from raw observations, independently of
// the timestep bookkeeping of the Learner. If deterministic is true,
// no exploration is performed, so that repeated predictions on the
// same observation with an unchanged policy return the same action.
type Predictor interface {
	Predict(obs *mat.VecDense, state RecurrentState,
		deterministic bool) (*mat.VecDense, RecurrentState, error)
}

// StepCounter exposes the number of training steps a policy has
// been trained for. The count is incremented by the training loop, once
// per environment step.
type StepCounter interface {
	Steps() int
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and Learner
// should have pointers to the same weights so that any changes the learner
// makes to the weights are reflected in the actions the Policy chooses
type Policy interface {
	Predictor
	StepCounter
	SelectAction(t timestep.TimeStep) (*mat.VecDense, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}
