package deepq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/starla/dqnstop/environment"
	"github.com/starla/dqnstop/environment/envconfig"
	ts "github.com/starla/dqnstop/timestep"
)

func smallConfig() Config {
	c := DefaultConfig()
	c.PolicyLayers = []int{8}
	c.Activations = []string{"relu"}
	c.BatchSize = 4
	c.BufferSize = 32
	c.LearningStarts = 4
	c.TrainFreq = 2
	c.GradientSteps = 2
	c.TargetUpdateInterval = 4
	c.TotalSteps = 100
	c.ExplorationFraction = 0.5
	return c
}

func newTestAgent(t *testing.T, c Config,
	seed uint64) (*DeepQ, environment.Environment, ts.TimeStep) {
	t.Helper()
	e, first, err := envconfig.Default().Create(seed)
	require.NoError(t, err)

	d, err := New(e, c, seed, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, e, first
}

func TestLinearSchedule(t *testing.T) {
	s, err := NewLinearSchedule(1.0, 0.07, 0.2, 90000)
	require.NoError(t, err)

	require.InDelta(t, 1.0, s.Value(0), 1e-12)
	require.InDelta(t, 0.535, s.Value(9000), 1e-12)
	require.InDelta(t, 0.07, s.Value(18000), 1e-12)
	require.InDelta(t, 0.07, s.Value(50000), 1e-12)

	_, err = NewLinearSchedule(1.0, 0.07, 0, 90000)
	require.Error(t, err)
}

func TestTrainingUpdates(t *testing.T) {
	d, e, step := newTestAgent(t, smallConfig(), 3)
	require.NoError(t, d.ObserveFirst(step))

	initial := d.trainNet.Weights()
	for i := 0; i < 20; i++ {
		action, err := d.SelectAction(step)
		require.NoError(t, err)

		var last bool
		step, last, err = e.Step(action)
		require.NoError(t, err)
		require.NoError(t, d.Observe(action, step))
		require.NoError(t, d.Step())

		if last {
			d.EndEpisode()
			step, err = e.Reset()
			require.NoError(t, err)
			require.NoError(t, d.ObserveFirst(step))
		}
	}

	require.Equal(t, 20, d.Steps())

	// Updates happen at steps 6, 8, ..., 20 with two gradient steps each
	require.Equal(t, 16, d.Updates())
	require.NotEqual(t, initial, d.trainNet.Weights())

	// The target network was last updated at step 20, after training
	require.Equal(t, d.trainNet.Weights(), d.targetNet.Weights())
	require.Equal(t, d.trainNet.Weights(), d.policy.Network().Weights())

	// Epsilon anneals over the first 50 steps
	require.InDelta(t, 1.0+0.4*(0.07-1.0), d.Epsilon(), 1e-12)
}

func TestTerminationZeroesDiscount(t *testing.T) {
	c := smallConfig()
	c.BatchSize = 1
	c.BufferSize = 1
	d, _, first := newTestAgent(t, c, 1)
	require.NoError(t, d.ObserveFirst(first))

	action := mat.NewVecDense(1, []float64{2})
	obs := mat.NewVecDense(2, []float64{0.5, 0.01})

	terminal := ts.New(ts.Mid, -1, 1, obs, 1)
	terminal.SetEnd(ts.TerminalStateReached)
	require.NoError(t, d.Observe(action, terminal))
	state, oneHot, reward, discount, next, err := d.replay.Sample()
	require.NoError(t, err)
	require.Equal(t, first.Observation.RawVector().Data, state)
	require.Equal(t, []float64{0, 0, 1}, oneHot)
	require.Equal(t, []float64{-1}, reward)
	require.Equal(t, []float64{0}, discount)
	require.Equal(t, []float64{0.5, 0.01}, next)

	truncated := ts.New(ts.Mid, -1, 1, obs, 200)
	truncated.SetEnd(ts.Timeout)
	require.NoError(t, d.ObserveFirst(ts.New(ts.First, 0, 1, obs, 0)))
	require.NoError(t, d.Observe(action, truncated))
	_, _, _, discount, _, err = d.replay.Sample()
	require.NoError(t, err)
	require.Equal(t, []float64{c.Gamma}, discount)
}

func TestPredictDeterministic(t *testing.T) {
	d, _, first := newTestAgent(t, smallConfig(), 5)

	action, state, err := d.Predict(first.Observation, nil, true)
	require.NoError(t, err)
	require.Nil(t, state)

	// The Q-network is not recurrent, so any given state is dropped
	_, state, err = d.Predict(first.Observation, []float64{1, 2}, true)
	require.NoError(t, err)
	require.Nil(t, state)

	for i := 0; i < 10; i++ {
		again, _, err := d.Predict(first.Observation, nil, true)
		require.NoError(t, err)
		require.Equal(t, action.AtVec(0), again.AtVec(0))
	}
}

func TestSaveLoad(t *testing.T) {
	source, _, first := newTestAgent(t, smallConfig(), 11)
	dest, _, _ := newTestAgent(t, smallConfig(), 12)

	var buf bytes.Buffer
	require.NoError(t, source.Save(&buf))
	require.NoError(t, dest.Load(&buf))

	want, err := source.ActionValues(first.Observation)
	require.NoError(t, err)
	have, err := dest.ActionValues(first.Observation)
	require.NoError(t, err)
	require.Equal(t, want, have)

	// Architectures must match
	c := smallConfig()
	c.PolicyLayers = []int{4}
	other, _, _ := newTestAgent(t, c, 13)
	buf.Reset()
	require.NoError(t, source.Save(&buf))
	require.Error(t, other.Load(&buf))
}

func TestObserveOrder(t *testing.T) {
	d, _, first := newTestAgent(t, smallConfig(), 1)
	action := mat.NewVecDense(1, []float64{0})

	require.Error(t, d.Observe(action, first))
	require.Error(t, d.ObserveFirst(ts.New(ts.Mid, -1, 1, first.Observation,
		3)))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	invalid := []func(c *Config){
		func(c *Config) { c.Activations = nil },
		func(c *Config) { c.Gamma = 1.5 },
		func(c *Config) { c.BufferSize = c.BatchSize - 1 },
		func(c *Config) { c.TrainFreq = 0 },
		func(c *Config) { c.TargetUpdateInterval = 0 },
		func(c *Config) { c.Tau = 0 },
		func(c *Config) { c.ExplorationFinalEps = -0.1 },
		func(c *Config) { c.ExplorationFraction = 0 },
		func(c *Config) { c.Solver.LearningRate = 0 },
		func(c *Config) { c.Loss = "l1" },
		func(c *Config) { c.MaxGradNorm = -1 },
	}
	for i, modify := range invalid {
		c := DefaultConfig()
		modify(&c)
		require.Error(t, c.Validate(), "case %d", i)
	}
}
