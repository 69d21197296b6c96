// Package config implements the configuration of a training run, loaded
// from defaults, configuration files, environment variables, and flags
package config

import (
	"github.com/pkg/errors"

	"github.com/starla/dqnstop/agent/nonlinear/discrete/deepq"
	"github.com/starla/dqnstop/environment/envconfig"
	"github.com/starla/dqnstop/experiment/callback"
	"github.com/starla/dqnstop/experiment/checkpointer"
)

// Config is the configuration of a training run
type Config struct {
	Seed        uint64                     `mapstructure:"seed"`
	Environment envconfig.Config           `mapstructure:"environment"`
	Agent       deepq.Config               `mapstructure:"agent"`
	Stopper     callback.FailureRateConfig `mapstructure:"stopper"`
	Paths       PathsConfig                `mapstructure:"paths"`
	LogRotation LogRotationConfig          `mapstructure:"log_rotation"`

	// CheckpointEvery saves the model every CheckpointEvery steps to
	// Paths.Checkpoints. A value of 0 disables checkpointing.
	CheckpointEvery int `mapstructure:"checkpoint_every"`

	// CheckpointNaming determines the names of checkpoint files: one
	// file per step, an enumerated sequence, or a single file holding
	// the latest checkpoint
	CheckpointNaming checkpointer.Naming `mapstructure:"checkpoint_naming"`
}

// PathsConfig holds the file paths written by a training run. Empty
// paths disable the corresponding output, except Model.
type PathsConfig struct {
	Model          string `mapstructure:"model"`
	Returns        string `mapstructure:"returns"`
	EpisodeLengths string `mapstructure:"episode_lengths"`
	Checkpoints    string `mapstructure:"checkpoints"`
	Log            string `mapstructure:"log"`
}

// LogRotationConfig holds settings for log file rotation
type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns the configuration which trains DeepQ on Mountain Car
// for 90,000 steps, checking the failure rate of the greedy policy on
// 100 episodes every 500 steps after the first 82,000 steps and
// stopping once at most 10% of episodes fail.
func Default() *Config {
	return &Config{
		Seed:             2,
		Environment:      envconfig.Default(),
		Agent:            deepq.DefaultConfig(),
		CheckpointNaming: checkpointer.StepNaming,
		Stopper: callback.FailureRateConfig{
			EvalFrequency:        500,
			NumEvalEpisodes:      100,
			FailureRateThreshold: 0.10,
			StartOnSteps:         82_000,
			Convention:           callback.TruncationIsFailure,
			Verbose:              1,
		},
		Paths: PathsConfig{
			Model:       "RLtest/1.bin",
			Checkpoints: "RLtest/checkpoint",
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate returns an error describing why the Config is invalid, or
// nil if the Config is valid
func (c *Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return errors.Wrap(err, "validate: environment")
	}
	if err := c.Agent.Validate(); err != nil {
		return errors.Wrap(err, "validate: agent")
	}
	if err := c.Stopper.Validate(); err != nil {
		return errors.Wrap(err, "validate: stopper")
	}
	if c.Paths.Model == "" {
		return errors.New("validate: model path must not be empty")
	}
	if c.CheckpointEvery < 0 {
		return errors.Errorf("validate: checkpoint interval must be "+
			"non-negative \n\thave(%v)", c.CheckpointEvery)
	}
	if c.CheckpointEvery > 0 {
		if c.Paths.Checkpoints == "" {
			return errors.New("validate: checkpointing requires a " +
				"checkpoint path")
		}
		if err := c.CheckpointNaming.Validate(); err != nil {
			return errors.Wrap(err, "validate: checkpoints")
		}
	}
	return nil
}
