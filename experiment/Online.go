package experiment

import (
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/starla/dqnstop/agent"
	env "github.com/starla/dqnstop/environment"
	"github.com/starla/dqnstop/experiment/callback"
	"github.com/starla/dqnstop/experiment/checkpointer"
	"github.com/starla/dqnstop/experiment/tracker"
	ts "github.com/starla/dqnstop/timestep"
)

// Online is an Experiment that runs an agent online only. After every
// step the agent takes, the Callback is invoked with the number of
// steps taken so far, and the experiment halts if it returns false.
type Online struct {
	env           env.Environment
	agent         agent.Agent
	maxSteps      int
	currentSteps  int
	episodes      int
	halted        bool
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
	callback      callback.Callback
	logger        *slog.Logger
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines the
// maximum number of timesteps the experiment is run for, t determines
// what data is saved, and check determines when the agent is saved.
// The Callback c may be nil, and a nil logger discards all log output.
func NewOnline(e env.Environment, a agent.Agent, steps int,
	t []tracker.Tracker, check []checkpointer.Checkpointer,
	c callback.Callback, logger *slog.Logger) *Online {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Online{
		env:           e,
		agent:         a,
		maxSteps:      steps,
		trackers:      t,
		checkpointers: check,
		callback:      c,
		logger:        logger,
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Steps returns the number of steps taken in the experiment so far
func (o *Online) Steps() int {
	return o.currentSteps
}

// Halted returns whether the Callback halted the experiment
func (o *Online) Halted() bool {
	return o.halted
}

// done returns whether the experiment has ended
func (o *Online) done() bool {
	return o.halted || o.currentSteps >= o.maxSteps
}

// RunEpisode runs a single episode of the experiment and returns
// whether the experiment has ended
func (o *Online) RunEpisode(ctx context.Context) (bool, error) {
	if o.done() {
		return true, nil
	}

	step, err := o.env.Reset()
	if err != nil {
		return true, errors.Wrap(err, "runEpisode: could not reset "+
			"environment")
	}
	if err := o.agent.ObserveFirst(step); err != nil {
		return true, errors.Wrap(err, "runEpisode")
	}
	o.track(step)
	defer o.agent.EndEpisode()

	for !step.Last() && !o.done() {
		if err := ctx.Err(); err != nil {
			return true, err
		}

		// Select action, step in environment
		action, err := o.agent.SelectAction(step)
		if err != nil {
			return true, errors.Wrap(err, "runEpisode")
		}
		if step, _, err = o.env.Step(action); err != nil {
			return true, errors.Wrapf(err, "runEpisode: step %v",
				o.currentSteps)
		}
		o.currentSteps++

		// Cache the environment step in each Tracker
		o.track(step)

		// Observe the timestep and step the agent
		if err := o.agent.Observe(action, step); err != nil {
			return true, errors.Wrap(err, "runEpisode")
		}
		if err := o.agent.Step(); err != nil {
			return true, errors.Wrap(err, "runEpisode")
		}

		if err := o.checkpoint(); err != nil {
			return true, err
		}

		if o.callback == nil {
			continue
		}
		cont, err := o.callback.OnStep(o.currentSteps, o.agent)
		if err != nil {
			return true, errors.WithMessage(err, "runEpisode")
		}
		o.halted = !cont
	}

	if step.Last() {
		o.episodes++
		o.logger.Debug("episode finished", "episode", o.episodes,
			"length", step.Number, "end", step.EndType(),
			"steps", o.currentSteps)
	}

	return o.done(), nil
}

// Run runs the experiment until the maximum number of steps is reached
// or the Callback halts it, and returns the number of steps taken
func (o *Online) Run(ctx context.Context) (int, error) {
	ended := false
	var err error
	for !ended {
		if ended, err = o.RunEpisode(ctx); err != nil {
			return o.currentSteps, err
		}
	}
	return o.currentSteps, nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// checkpoint calls each Checkpointer with the current step
func (o *Online) checkpoint() error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.currentSteps); err != nil {
			return err
		}
	}
	return nil
}
