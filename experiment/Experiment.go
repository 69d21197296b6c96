// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"

	"github.com/starla/dqnstop/experiment/tracker"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments will track environment TimeSteps, caching each TimeStep
// in RAM to be later saved to disk. The Save() function will then take
// all cached data and save it to disk. This is usually performed after
// an experiment has been run. The Run() method will run all episodes
// until the maximum timestep limit is reached, or some callback halts
// the experiment, and returns the number of steps taken. The
// RunEpisode() function will run a single episode and returns whether
// the experiment has ended.
//
// In order to save data, Experiments use Trackers. Trackers determine
// which data generated during the experiment is saved. Experiments
// will send each TimeStep to Trackers using the Tracker's Track()
// method. New Trackers can be registered with an Experiment through
// the constructor or through an Experiment's Register() function.
type Experiment interface {
	Run(ctx context.Context) (int, error)
	RunEpisode(ctx context.Context) (bool, error)

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}
