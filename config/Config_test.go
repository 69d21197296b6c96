package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starla/dqnstop/agent/nonlinear/discrete/deepq"
	"github.com/starla/dqnstop/experiment/callback"
	"github.com/starla/dqnstop/experiment/checkpointer"
	"github.com/starla/dqnstop/solver"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	require.Equal(t, uint64(2), cfg.Seed)
	require.Equal(t, 500, cfg.Stopper.EvalFrequency)
	require.Equal(t, 100, cfg.Stopper.NumEvalEpisodes)
	require.Equal(t, 0.10, cfg.Stopper.FailureRateThreshold)
	require.Equal(t, 82_000, cfg.Stopper.StartOnSteps)
	require.Equal(t, callback.TruncationIsFailure, cfg.Stopper.Convention)

	require.Equal(t, 90_000, cfg.Agent.TotalSteps)
	require.Equal(t, []int{256, 256}, cfg.Agent.PolicyLayers)
	require.Equal(t, solver.Adam, cfg.Agent.Solver.Type)
	require.Equal(t, 4e-3, cfg.Agent.Solver.LearningRate)
	require.Equal(t, deepq.Huber, cfg.Agent.Loss)
	require.Equal(t, 10.0, cfg.Agent.MaxGradNorm)
	require.Equal(t, checkpointer.StepNaming, cfg.CheckpointNaming)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
seed: 7
agent:
  batch_size: 32
  policy_layers: [64, 64]
stopper:
  failure_rate_threshold: 0.2
  convention: termination
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv("DQNSTOP_STOPPER_NUM_EVAL_EPISODES", "20")

	v := NewViper()
	v.Set("config", path)
	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, uint64(7), cfg.Seed)
	require.Equal(t, 32, cfg.Agent.BatchSize)
	require.Equal(t, []int{64, 64}, cfg.Agent.PolicyLayers)
	require.Equal(t, 0.2, cfg.Stopper.FailureRateThreshold)
	require.Equal(t, callback.TerminationIsFailure, cfg.Stopper.Convention)
	require.Equal(t, 20, cfg.Stopper.NumEvalEpisodes)

	// Values not overridden keep their defaults
	require.Equal(t, 500, cfg.Stopper.EvalFrequency)
	require.Equal(t, 10_000, cfg.Agent.BufferSize)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("DQNSTOP_STOPPER_FAILURE_RATE_THRESHOLD", "1.5")
	_, err := Load(NewViper())
	require.ErrorIs(t, err, callback.ErrInvalidConfiguration)
	require.Contains(t, err.Error(), "validate: stopper")

	v := NewViper()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load(v)
	require.Error(t, err)
}

func TestValidateCheckpoints(t *testing.T) {
	cfg := Default()
	cfg.CheckpointNaming = "hourly"
	require.NoError(t, cfg.Validate(), "naming is unused without checkpoints")

	cfg.CheckpointEvery = 1000
	require.Error(t, cfg.Validate())

	cfg.CheckpointNaming = checkpointer.LatestNaming
	require.NoError(t, cfg.Validate())

	cfg.Paths.Checkpoints = ""
	require.Error(t, cfg.Validate())
}
