package expreplay

import (
	"fmt"

	"github.com/starla/dqnstop/timestep"
)

// fifoCache implements a concrete ExperienceReplayer where elements
// are removed from the buffer in a FiFo manner, one at a time, once the
// buffer is full. This is the most common use of experience replay.
type fifoCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	currentInUsePos int
	isFull          bool

	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// newFifoCache returns a new fifoCache
func newFifoCache(sampler Selector, minCapacity, maxCapacity,
	featureSize, actionSize int) *fifoCache {
	return &fifoCache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}
}

// BatchSize returns the number of samples sampled using Sample()
func (c *fifoCache) BatchSize() int {
	return c.sampler.BatchSize()
}

// Capacity returns the current number of elements in the fifoCache
// that are available for sampling
func (c *fifoCache) Capacity() int {
	if c.isFull {
		return c.maxCapacity
	}
	return c.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the fifoCache
func (c *fifoCache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// fifoCache before sampling is allowed
func (c *fifoCache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the fifoCache, overwriting the oldest
// transition if the cache is full
func (c *fifoCache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("invalid feature size \n\twant(%v)\n\thave(%v)",
				c.featureSize, t.State.Len()),
		}
	}
	if t.Action.Len() != c.actionSize {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("invalid action size \n\twant(%v)\n\thave(%v)",
				c.actionSize, t.Action.Len()),
		}
	}

	index := c.currentInUsePos

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	if !c.isFull && index+1 == c.maxCapacity {
		c.isFull = true
	}
	c.currentInUsePos = (c.currentInUsePos + 1) % c.maxCapacity
	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer. The returned values are the state, action, reward, discount,
// and next state.
func (c *fifoCache) Sample() ([]float64, []float64, []float64,
	[]float64, []float64, error) {
	if c.Capacity() == 0 {
		return nil, nil, nil, nil, nil, &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
	}
	if c.Capacity() < c.MinCapacity() {
		return nil, nil, nil, nil, nil, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := c.sampler.choose(c.Capacity())

	stateBatch := make([]float64, 0, c.BatchSize()*c.featureSize)
	nextStateBatch := make([]float64, 0, c.BatchSize()*c.featureSize)
	actionBatch := make([]float64, 0, c.BatchSize()*c.actionSize)
	rewardBatch := make([]float64, c.BatchSize())
	discountBatch := make([]float64, c.BatchSize())

	for i, index := range indices {
		stateInd := index * c.featureSize
		stateBatch = append(stateBatch,
			c.stateCache[stateInd:stateInd+c.featureSize]...)
		nextStateBatch = append(nextStateBatch,
			c.nextStateCache[stateInd:stateInd+c.featureSize]...)

		actionInd := index * c.actionSize
		actionBatch = append(actionBatch,
			c.actionCache[actionInd:actionInd+c.actionSize]...)

		rewardBatch[i] = c.rewardCache[index]
		discountBatch[i] = c.discountCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, discountBatch,
		nextStateBatch, nil
}

// String returns the string representation of the fifoCache
func (c *fifoCache) String() string {
	return fmt.Sprintf("FiFo Replay | Capacity: %v/%v | Batch Size: %v",
		c.Capacity(), c.MaxCapacity(), c.BatchSize())
}
