package environment

import (
	"gonum.org/v1/gonum/mat"

	ts "github.com/starla/dqnstop/timestep"
)

// StepLimit truncates episodes once they reach a number of steps.
// Episodes ended by a StepLimit have EndType timestep.Timeout.
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit returns a new StepLimit which truncates episodes after
// episodeSteps steps
func NewStepLimit(episodeSteps int) *StepLimit {
	return &StepLimit{episodeSteps}
}

// End ends the episode if t is at or past the step limit
func (s *StepLimit) End(t *ts.TimeStep) bool {
	if t.Number >= s.episodeSteps {
		t.SetEnd(ts.Timeout)
		return true
	}
	return false
}

// EpisodeSteps returns the number of steps after which episodes are
// truncated
func (s *StepLimit) EpisodeSteps() int {
	return s.episodeSteps
}

// Terminal terminates episodes when the observation is a terminal
// state of the task. Episodes ended by a Terminal have EndType
// timestep.TerminalStateReached.
type Terminal struct {
	isTerminal func(mat.Vector) bool
}

// NewTerminal returns a new Terminal which ends episodes on
// observations for which isTerminal returns true
func NewTerminal(isTerminal func(mat.Vector) bool) *Terminal {
	return &Terminal{isTerminal}
}

// End ends the episode if the observation of t is terminal
func (e *Terminal) End(t *ts.TimeStep) bool {
	if e.isTerminal(t.Observation) {
		t.SetEnd(ts.TerminalStateReached)
		return true
	}
	return false
}

// firstOf ends an episode with the first of its Enders which ends it
type firstOf []Ender

// FirstOf returns an Ender which consults each of enders in order and
// ends the episode as the first one which ends it does. Listing a
// Terminal before a StepLimit makes an episode which reaches a terminal
// state on its last allowed step count as terminated.
func FirstOf(enders ...Ender) Ender {
	return firstOf(enders)
}

func (f firstOf) End(t *ts.TimeStep) bool {
	for _, e := range f {
		if e.End(t) {
			return true
		}
	}
	return false
}
