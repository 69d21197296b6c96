package callback

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/starla/dqnstop/agent"
	"github.com/starla/dqnstop/environment"
	ts "github.com/starla/dqnstop/timestep"
)

// DefaultMaxEpisodeSteps is the number of steps after which a single
// evaluation episode is considered to have run away when
// FailureRateConfig.MaxEpisodeSteps is 0
const DefaultMaxEpisodeSteps = 100_000

var (
	// ErrInvalidConfiguration is returned when a FailureRate is
	// constructed with an invalid FailureRateConfig
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEvaluation is returned when an evaluation cannot be completed
	// because the evaluation environment or the evaluated policy failed
	ErrEvaluation = errors.New("evaluation failed")

	// ErrInvalidStep is returned when OnStep is called with a step
	// count lower than on a previous call
	ErrInvalidStep = errors.New("invalid step")
)

// EvaluationError records the evaluation episode in which an
// evaluation failed and the cause of the failure. It matches
// ErrEvaluation under errors.Is and unwraps to the cause.
type EvaluationError struct {
	Episode int
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%v: episode %v: %v", ErrEvaluation, e.Episode, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrEvaluation
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// Convention determines which way of ending an evaluation episode is
// counted as a failure
type Convention string

const (
	// TruncationIsFailure counts every episode which does not end in a
	// terminal state of the task as a failure. This suits tasks such as
	// Mountain Car, where termination means the goal was reached.
	TruncationIsFailure Convention = "truncation"

	// TerminationIsFailure counts every episode which ends in a
	// terminal state of the task as a failure. This suits tasks where
	// termination means the agent crashed or fell, and surviving until
	// the step limit is a success.
	TerminationIsFailure Convention = "termination"
)

// failed returns whether an episode ending in last is a failure
func (c Convention) failed(last ts.TimeStep) bool {
	if c == TerminationIsFailure {
		return last.Terminated()
	}
	return !last.Terminated()
}

// FailureRateConfig configures a FailureRate stopper
type FailureRateConfig struct {
	// EvalFrequency is the number of training steps between
	// evaluations
	EvalFrequency int `mapstructure:"eval_frequency"`

	// NumEvalEpisodes is the number of episodes run per evaluation
	NumEvalEpisodes int `mapstructure:"num_eval_episodes"`

	// FailureRateThreshold is the failure rate at or below which
	// training stops
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`

	// StartOnSteps is the number of training steps before which no
	// evaluation is performed
	StartOnSteps int `mapstructure:"start_on_steps"`

	// MaxEpisodeSteps caps the length of a single evaluation episode.
	// If 0, DefaultMaxEpisodeSteps is used.
	MaxEpisodeSteps int `mapstructure:"max_episode_steps"`

	// Convention determines which episodes are failures. If empty,
	// TruncationIsFailure is used.
	Convention Convention `mapstructure:"convention"`

	// Verbose > 0 logs the failure rate of each evaluation
	Verbose int `mapstructure:"verbose"`
}

// Validate returns an error wrapping ErrInvalidConfiguration if the
// FailureRateConfig is invalid
func (c FailureRateConfig) Validate() error {
	if c.EvalFrequency <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "eval frequency must "+
			"be positive, have %v", c.EvalFrequency)
	}
	if c.NumEvalEpisodes <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "number of evaluation "+
			"episodes must be positive, have %v", c.NumEvalEpisodes)
	}
	if math.IsNaN(c.FailureRateThreshold) || c.FailureRateThreshold < 0 ||
		c.FailureRateThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "failure rate "+
			"threshold must be in [0, 1], have %v", c.FailureRateThreshold)
	}
	if c.StartOnSteps < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "start on steps must "+
			"be non-negative, have %v", c.StartOnSteps)
	}
	if c.MaxEpisodeSteps < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "max episode steps "+
			"must be non-negative, have %v", c.MaxEpisodeSteps)
	}
	switch c.Convention {
	case "", TruncationIsFailure, TerminationIsFailure:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown failure "+
			"convention %q", c.Convention)
	}
	return nil
}

// Outcome is the result of a single evaluation
type Outcome struct {
	Failures int
	Episodes int
}

// Rate returns the fraction of evaluation episodes which failed
func (o Outcome) Rate() float64 {
	return float64(o.Failures) / float64(o.Episodes)
}

func (o Outcome) String() string {
	return fmt.Sprintf("%d/%d episodes failed (%.2f%%)", o.Failures,
		o.Episodes, 100*o.Rate())
}

// FailureRate is a Callback which periodically evaluates the trained
// policy on its own evaluation environment and halts training once the
// fraction of failed evaluation episodes is at or below a threshold.
//
// An evaluation is run on step s iff s >= StartOnSteps and s is a
// multiple of EvalFrequency. Each evaluation runs NumEvalEpisodes
// episodes to completion, selecting actions deterministically.
// Evaluations run synchronously within OnStep.
//
// The evaluation environment must not be shared with the training
// loop or any other FailureRate.
type FailureRate struct {
	env    environment.Environment
	config FailureRateConfig
	logger *slog.Logger

	step        int
	lastOutcome *Outcome
}

// NewFailureRate returns a new FailureRate which evaluates policies on
// the environment e. A nil logger discards all log output.
func NewFailureRate(e environment.Environment, c FailureRateConfig,
	logger *slog.Logger) (*FailureRate, error) {
	if e == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration,
			"newFailureRate: evaluation environment must not be nil")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.WithMessage(err, "newFailureRate")
	}

	if c.MaxEpisodeSteps == 0 {
		c.MaxEpisodeSteps = DefaultMaxEpisodeSteps
	}
	if c.Convention == "" {
		c.Convention = TruncationIsFailure
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &FailureRate{env: e, config: c, logger: logger, step: 0}, nil
}

// Config returns the configuration of the FailureRate with defaults
// filled in
func (f *FailureRate) Config() FailureRateConfig {
	return f.config
}

// Step returns the step count of the most recent call to OnStep
func (f *FailureRate) Step() int {
	return f.step
}

// LastOutcome returns the outcome of the most recent evaluation and
// whether any evaluation has been run
func (f *FailureRate) LastOutcome() (Outcome, bool) {
	if f.lastOutcome == nil {
		return Outcome{}, false
	}
	return *f.lastOutcome, true
}

// Halted returns whether the most recent evaluation measured a failure
// rate at or below the threshold, so that training should stop
func (f *FailureRate) Halted() bool {
	return f.lastOutcome != nil &&
		f.lastOutcome.Rate() <= f.config.FailureRateThreshold
}

// ShouldEvaluate returns whether an evaluation is run on step
func (f *FailureRate) ShouldEvaluate(step int) bool {
	return step >= f.config.StartOnSteps && step%f.config.EvalFrequency == 0
}

// OnStep records that training has reached step, evaluating model if
// an evaluation is scheduled on step. OnStep returns false if and only
// if an evaluation was run and its failure rate is at or below the
// threshold.
func (f *FailureRate) OnStep(step int, model agent.Predictor) (bool, error) {
	if step < f.step {
		return false, errors.Wrapf(ErrInvalidStep, "onStep: step %v "+
			"follows step %v", step, f.step)
	}
	f.step = step

	if !f.ShouldEvaluate(step) {
		return true, nil
	}

	outcome, err := f.Evaluate(model)
	if err != nil {
		return false, errors.WithMessagef(err, "onStep: step %v", step)
	}

	if f.config.Verbose > 0 {
		f.logger.Info("evaluated policy", "step", step,
			"failure_rate", outcome.Rate(), "failures", outcome.Failures,
			"episodes", outcome.Episodes)
	}

	return !f.Halted(), nil
}

// Evaluate runs NumEvalEpisodes episodes on the evaluation environment
// with deterministic actions from model and returns how many failed.
// Any environment or model error aborts the evaluation with an error
// wrapping ErrEvaluation.
func (f *FailureRate) Evaluate(model agent.Predictor) (Outcome, error) {
	outcome := Outcome{Episodes: f.config.NumEvalEpisodes}
	for i := 0; i < f.config.NumEvalEpisodes; i++ {
		last, err := f.rollout(model)
		if err != nil {
			return Outcome{}, errors.WithMessage(
				&EvaluationError{Episode: i, Err: err}, "evaluate")
		}
		if f.config.Convention.failed(last) {
			outcome.Failures++
		}
	}

	f.lastOutcome = &outcome
	return outcome, nil
}

// rollout runs a single episode to completion and returns its last
// timestep
func (f *FailureRate) rollout(model agent.Predictor) (ts.TimeStep, error) {
	step, err := f.env.Reset()
	if err != nil {
		return ts.TimeStep{}, errors.Wrap(err, "could not reset environment")
	}

	var state agent.RecurrentState
	var action *mat.VecDense
	for n := 0; n < f.config.MaxEpisodeSteps; n++ {
		action, state, err = model.Predict(step.Observation, state, true)
		if err != nil {
			return ts.TimeStep{}, errors.Wrap(err, "could not predict action")
		}

		var last bool
		step, last, err = f.env.Step(action)
		if err != nil {
			return ts.TimeStep{}, errors.Wrap(err,
				"could not step environment")
		}
		if last || step.Last() {
			return step, nil
		}
	}

	return ts.TimeStep{}, errors.Errorf("episode did not end within %v steps",
		f.config.MaxEpisodeSteps)
}
