package mountaincar

import (
	"gonum.org/v1/gonum/mat"

	env "github.com/starla/dqnstop/environment"
)

const (
	// GoalPosition is the x position of the goal in the standard task
	GoalPosition float64 = 0.5

	// GoalVelocity is the minimum velocity the car must have at the
	// goal position in the standard task
	GoalVelocity float64 = 0.0

	// EpisodeCutoff is the standard episode step limit
	EpisodeCutoff int = 200
)

// Goal implements the classic control task of reaching a goal on
// Mountain Car. In this task, the agent must learn to drive the car
// up the hill and reach the goal state. Since the car is underpowered,
// it must rock back and forth from hill to hill until it reaches the
// goal.
//
// Rewards are -1 on each timestep.
//
// Episodes terminate when the car reaches the goal state and are
// truncated after a step limit.
type Goal struct {
	env.Starter
	env.Ender
	goalX float64 // x position of goal
	goalV float64 // minimum velocity at the goal
}

// NewGoal creates and returns a new Goal struct given a Starter, which
// determines the starting states; the maximum number of episode
// steps; and the goal x position and minimum goal velocity.
func NewGoal(s env.Starter, episodeSteps int, goalX, goalV float64) *Goal {
	g := &Goal{Starter: s, goalX: goalX, goalV: goalV}

	// Reaching the goal takes precedence over the step limit, so an
	// episode which reaches the goal on its final allowed step is
	// terminated rather than truncated
	g.Ender = env.FirstOf(env.NewTerminal(g.AtGoal),
		env.NewStepLimit(episodeSteps))
	return g
}

// AtGoal returns a boolean indicating whether or not the argument state
// is the goal state
func (g *Goal) AtGoal(state mat.Vector) bool {
	return state.AtVec(0) >= g.goalX && state.AtVec(1) >= g.goalV
}

// GetReward returns the reward for a given state and action, resulting
// in a given next state. Rewards are -1.0 for all transitions.
func (g *Goal) GetReward(_, _, _ mat.Vector) float64 {
	return -1.0
}

// Min returns the minimum attainable reward over all timesteps
func (g *Goal) Min() float64 { return -1.0 }

// Max returns the maximum attainable reward over all timesteps
func (g *Goal) Max() float64 { return -1.0 }

// RewardSpec returns the reward specification of the Task
func (g *Goal) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.Min()})
	upperBound := mat.NewVecDense(1, []float64{g.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Discrete)
}
