package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/starla/dqnstop/agent"
	"github.com/starla/dqnstop/environment"
	"github.com/starla/dqnstop/environment/envconfig"
	ts "github.com/starla/dqnstop/timestep"
)

// patternEnv ends each episode after length steps, by truncation if
// fail returns true for the episode's index and by termination
// otherwise. Methods other than Reset and Step are not implemented.
type patternEnv struct {
	environment.Environment

	fail   func(episode int) bool
	length int

	episode int
	t       int
	resets  int

	neverEnd bool
	resetErr error
	stepErr  error
}

func newPatternEnv(fail func(int) bool) *patternEnv {
	return &patternEnv{fail: fail, length: 3, episode: -1}
}

func (p *patternEnv) obs() *mat.VecDense {
	return mat.NewVecDense(2, []float64{float64(p.episode), float64(p.t)})
}

func (p *patternEnv) Reset() (ts.TimeStep, error) {
	if p.resetErr != nil {
		return ts.TimeStep{}, p.resetErr
	}
	p.resets++
	p.episode++
	p.t = 0
	return ts.New(ts.First, 0, 1, p.obs(), 0), nil
}

func (p *patternEnv) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	if p.stepErr != nil {
		return ts.TimeStep{}, false, p.stepErr
	}
	p.t++
	step := ts.New(ts.Mid, -1, 1, p.obs(), p.t)
	if p.neverEnd || p.t < p.length {
		return step, false, nil
	}

	if p.fail(p.episode) {
		step.SetEnd(ts.Timeout)
	} else {
		step.SetEnd(ts.TerminalStateReached)
	}
	return step, true, nil
}

// constantPolicy always predicts the same action and counts how often
// it was asked for an action
type constantPolicy struct {
	action        float64
	calls         int
	deterministic bool
	err           error
}

func (c *constantPolicy) Predict(_ *mat.VecDense, state agent.RecurrentState,
	deterministic bool) (*mat.VecDense, agent.RecurrentState, error) {
	c.calls++
	c.deterministic = deterministic
	if c.err != nil {
		return nil, state, c.err
	}
	return mat.NewVecDense(1, []float64{c.action}), state, nil
}

func failEvery(n int) func(int) bool {
	return func(episode int) bool { return episode%n == 0 }
}

func newStopper(t *testing.T, e environment.Environment,
	c FailureRateConfig) *FailureRate {
	t.Helper()
	f, err := NewFailureRate(e, c, nil)
	require.NoError(t, err)
	return f
}

func TestNoCheckOffSchedule(t *testing.T) {
	env := newPatternEnv(failEvery(1))
	f := newStopper(t, env, FailureRateConfig{
		EvalFrequency:        10,
		NumEvalEpisodes:      2,
		FailureRateThreshold: 1.0,
		StartOnSteps:         35,
	})
	model := &constantPolicy{}

	for step := 0; step <= 100; step++ {
		cont, err := f.OnStep(step, model)
		require.NoError(t, err)
		require.True(t, cont || f.ShouldEvaluate(step),
			"stopped on unscheduled step %v", step)

		if step < 35 || step%10 != 0 {
			require.False(t, f.ShouldEvaluate(step))
		}
	}

	// Checks at 40, 50, ..., 100
	require.Equal(t, 7*2, env.resets)
}

func TestAlwaysFail(t *testing.T) {
	f := newStopper(t, newPatternEnv(failEvery(1)), FailureRateConfig{
		EvalFrequency:        5,
		NumEvalEpisodes:      4,
		FailureRateThreshold: 0.99,
	})

	cont, err := f.OnStep(5, &constantPolicy{})
	require.NoError(t, err)
	require.True(t, cont)

	outcome, ok := f.LastOutcome()
	require.True(t, ok)
	require.Equal(t, 1.0, outcome.Rate())

	// A threshold of 1 accepts any policy
	f = newStopper(t, newPatternEnv(failEvery(1)), FailureRateConfig{
		EvalFrequency:        5,
		NumEvalEpisodes:      4,
		FailureRateThreshold: 1.0,
	})
	cont, err = f.OnStep(5, &constantPolicy{})
	require.NoError(t, err)
	require.False(t, cont)
}

func TestAlwaysTerminate(t *testing.T) {
	never := func(int) bool { return false }
	f := newStopper(t, newPatternEnv(never), FailureRateConfig{
		EvalFrequency:        5,
		NumEvalEpisodes:      3,
		FailureRateThreshold: 0,
	})
	model := &constantPolicy{}

	for step := 1; step < 5; step++ {
		cont, err := f.OnStep(step, model)
		require.NoError(t, err)
		require.True(t, cont)
	}

	cont, err := f.OnStep(5, model)
	require.NoError(t, err)
	require.False(t, cont, "first scheduled check should stop training")

	outcome, _ := f.LastOutcome()
	require.Equal(t, Outcome{Failures: 0, Episodes: 3}, outcome)
	require.True(t, model.deterministic, "evaluation must be deterministic")
}

func TestThresholdBoundary(t *testing.T) {
	// Episodes 0 and 4 fail, 2 of 8 episodes
	c := FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      8,
		FailureRateThreshold: 0.25,
	}

	f := newStopper(t, newPatternEnv(failEvery(4)), c)
	require.False(t, f.Halted())
	cont, err := f.OnStep(1, &constantPolicy{})
	require.NoError(t, err)
	require.False(t, cont, "failure rate equal to threshold should stop")
	require.True(t, f.Halted())

	c.FailureRateThreshold = 0.24
	f = newStopper(t, newPatternEnv(failEvery(4)), c)
	cont, err = f.OnStep(1, &constantPolicy{})
	require.NoError(t, err)
	require.True(t, cont)
	require.False(t, f.Halted())
}

func TestEvaluationLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	f, err := NewFailureRate(newPatternEnv(failEvery(4)), FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      8,
		FailureRateThreshold: 0.1,
		Verbose:              1,
	}, logger)
	require.NoError(t, err)

	_, err = f.OnStep(1, &constantPolicy{})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "evaluated policy", record["msg"])
	require.Equal(t, 0.25, record["failure_rate"])
	require.Equal(t, float64(2), record["failures"])
	require.Equal(t, float64(8), record["episodes"])
}

func TestIdempotentEvaluation(t *testing.T) {
	env := newPatternEnv(failEvery(5))
	f := newStopper(t, env, FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      20,
		FailureRateThreshold: 0.1,
	})
	model := &constantPolicy{action: 2}

	first, err := f.Evaluate(model)
	require.NoError(t, err)
	second, err := f.Evaluate(model)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 0.2, first.Rate())
}

func TestInvalidConfiguration(t *testing.T) {
	valid := FailureRateConfig{
		EvalFrequency:        500,
		NumEvalEpisodes:      100,
		FailureRateThreshold: 0.1,
	}

	tests := map[string]func(c *FailureRateConfig){
		"zero cadence":       func(c *FailureRateConfig) { c.EvalFrequency = 0 },
		"negative cadence":   func(c *FailureRateConfig) { c.EvalFrequency = -500 },
		"zero episodes":      func(c *FailureRateConfig) { c.NumEvalEpisodes = 0 },
		"threshold too high": func(c *FailureRateConfig) { c.FailureRateThreshold = 1.5 },
		"negative threshold": func(c *FailureRateConfig) { c.FailureRateThreshold = -0.1 },
		"negative warm-up":   func(c *FailureRateConfig) { c.StartOnSteps = -1 },
		"negative step cap":  func(c *FailureRateConfig) { c.MaxEpisodeSteps = -1 },
		"unknown convention": func(c *FailureRateConfig) { c.Convention = "crash" },
	}

	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			modify(&c)
			f, err := NewFailureRate(newPatternEnv(failEvery(1)), c, nil)
			require.Nil(t, f)
			require.True(t, errors.Is(err, ErrInvalidConfiguration),
				"have error %v", err)
		})
	}

	_, err := NewFailureRate(nil, valid, nil)
	require.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestWarmUpScenario(t *testing.T) {
	c := FailureRateConfig{
		EvalFrequency:        500,
		NumEvalEpisodes:      100,
		FailureRateThreshold: 0.10,
		StartOnSteps:         82000,
		Verbose:              1,
	}

	// One in twenty episodes fails, a 5% failure rate
	env := newPatternEnv(failEvery(20))
	f := newStopper(t, env, c)
	cont, err := f.OnStep(82000, &constantPolicy{})
	require.NoError(t, err)
	require.False(t, cont)

	outcome, _ := f.LastOutcome()
	require.Equal(t, 0.05, outcome.Rate())

	env = newPatternEnv(failEvery(20))
	f = newStopper(t, env, c)
	cont, err = f.OnStep(81500, &constantPolicy{})
	require.NoError(t, err)
	require.True(t, cont)
	require.Zero(t, env.resets, "no evaluation should run before warm-up")
}

func TestEvaluationErrors(t *testing.T) {
	c := FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      3,
		FailureRateThreshold: 0.5,
		MaxEpisodeSteps:      50,
	}
	boom := fmt.Errorf("boom")

	invalid := errors.Wrap(environment.ErrInvalidAction, "step")

	tests := map[string]struct {
		env   *patternEnv
		model *constantPolicy
		cause error
	}{
		"reset":   {&patternEnv{fail: failEvery(1), length: 3, resetErr: boom}, &constantPolicy{}, boom},
		"step":    {&patternEnv{fail: failEvery(1), length: 3, stepErr: boom}, &constantPolicy{}, boom},
		"action":  {&patternEnv{fail: failEvery(1), length: 3, stepErr: invalid}, &constantPolicy{}, environment.ErrInvalidAction},
		"predict": {newPatternEnv(failEvery(1)), &constantPolicy{err: boom}, boom},
		"runaway": {&patternEnv{fail: failEvery(1), length: 3, neverEnd: true}, &constantPolicy{}, nil},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := newStopper(t, test.env, c)
			cont, err := f.OnStep(1, test.model)
			require.False(t, cont)
			require.True(t, errors.Is(err, ErrEvaluation), "have error %v", err)
			if test.cause != nil {
				require.True(t, errors.Is(err, test.cause), "have error %v", err)
			}

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			require.Equal(t, 0, evalErr.Episode)

			_, ok := f.LastOutcome()
			require.False(t, ok)
		})
	}

	// The step cap bounds the number of actions taken
	runaway := &patternEnv{fail: failEvery(1), length: 3, neverEnd: true}
	model := &constantPolicy{}
	f := newStopper(t, runaway, c)
	_, err := f.Evaluate(model)
	require.Error(t, err)
	require.Equal(t, 50, model.calls)
}

func TestDecreasingStep(t *testing.T) {
	f := newStopper(t, newPatternEnv(failEvery(1)), FailureRateConfig{
		EvalFrequency:        100,
		NumEvalEpisodes:      1,
		FailureRateThreshold: 0.5,
	})

	_, err := f.OnStep(10, &constantPolicy{})
	require.NoError(t, err)
	_, err = f.OnStep(10, &constantPolicy{})
	require.NoError(t, err)

	_, err = f.OnStep(9, &constantPolicy{})
	require.True(t, errors.Is(err, ErrInvalidStep))
	require.Equal(t, 10, f.Step())
}

func TestTerminationIsFailure(t *testing.T) {
	// Episodes 0 and 2 are truncated, 1 and 3 terminate
	f := newStopper(t, newPatternEnv(failEvery(2)), FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      4,
		FailureRateThreshold: 0.5,
		Convention:           TerminationIsFailure,
	})

	outcome, err := f.Evaluate(&constantPolicy{})
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Failures)
	require.Equal(t, TerminationIsFailure, f.Config().Convention)
}

// recurrentPolicy counts the predictions made within an episode through
// its recurrent state
type recurrentPolicy struct {
	starts int
}

func (r *recurrentPolicy) Predict(_ *mat.VecDense, state agent.RecurrentState,
	_ bool) (*mat.VecDense, agent.RecurrentState, error) {
	if state == nil {
		r.starts++
		state = 0
	}
	return mat.NewVecDense(1, []float64{0}), state.(int) + 1, nil
}

func TestRecurrentStateResetEachEpisode(t *testing.T) {
	f := newStopper(t, newPatternEnv(failEvery(1)), FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      6,
		FailureRateThreshold: 0.5,
	})

	model := &recurrentPolicy{}
	_, err := f.Evaluate(model)
	require.NoError(t, err)
	require.Equal(t, 6, model.starts)
}

func TestMountainCar(t *testing.T) {
	c := FailureRateConfig{
		EvalFrequency:        1,
		NumEvalEpisodes:      5,
		FailureRateThreshold: 0.1,
	}

	// Without force the car can never leave the valley
	e, _, err := envconfig.Default().Create(1)
	require.NoError(t, err)
	f := newStopper(t, e, c)
	outcome, err := f.Evaluate(&constantPolicy{action: 1})
	require.NoError(t, err)
	require.Equal(t, 1.0, outcome.Rate())

	// Pushing in the direction of motion pumps enough energy into the
	// car to reach the goal within the step limit
	e, _, err = envconfig.Default().Create(1)
	require.NoError(t, err)
	f = newStopper(t, e, c)
	cont, err := f.OnStep(1, pumpPolicy{})
	require.NoError(t, err)
	require.False(t, cont)
}

type pumpPolicy struct{}

func (pumpPolicy) Predict(obs *mat.VecDense, state agent.RecurrentState,
	_ bool) (*mat.VecDense, agent.RecurrentState, error) {
	action := 0.0
	if obs.AtVec(1) >= 0 {
		action = 2.0
	}
	return mat.NewVecDense(1, []float64{action}), state, nil
}
