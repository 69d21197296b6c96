// Package expreplay implements experience replay buffers
package expreplay

import (
	"errors"
	"fmt"

	"github.com/starla/dqnstop/timestep"
)

var (
	errEmptyCache          = errors.New("cannot sample from empty buffer")
	errInsufficientSamples = errors.New("insufficient samples in buffer")
)

// ExpReplayError records an error and the operation that caused it
type ExpReplayError struct {
	Op  string
	Err error
}

func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// IsEmptyBuffer returns whether the error was caused by sampling from
// an empty buffer
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyCache)
}

// IsInsufficientSamples returns whether the error was caused by
// sampling from a buffer with fewer samples than its minimum capacity
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	SampleSize        int `mapstructure:"sample_size"`
	MaxReplayCapacity int `mapstructure:"max_replay_capacity"`
	MinReplayCapacity int `mapstructure:"min_replay_capacity"`
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	sampler := NewUniformSelector(c.SampleSize, seed)
	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity,
		featureSize, actionSize)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer and returns
	// the batch of (S, A, R, γ, S') tuples as []float64 in row major
	// order
	Sample() ([]float64, []float64, []float64, []float64, []float64,
		error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// New creates and returns a new ExperienceReplayer. Data is removed
// from the buffer in a FiFo manner once the buffer is at maxCapacity,
// and sampled using sampler. The featureSize and actionSize parameters
// define the size of the feature and action vectors.
func New(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if sampler.BatchSize() <= 0 {
		return nil, fmt.Errorf("new: batch size must be > 0")
	}
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: cannot have minCapacity (%v) > "+
			"maxCapacity (%v)", minCapacity, maxCapacity)
	}
	if featureSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: feature and action sizes must be > 0")
	}

	return newFifoCache(sampler, minCapacity, maxCapacity, featureSize,
		actionSize), nil
}
