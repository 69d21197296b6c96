package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/starla/dqnstop/agent/nonlinear/discrete/deepq"
	"github.com/starla/dqnstop/config"
	"github.com/starla/dqnstop/experiment"
	"github.com/starla/dqnstop/experiment/callback"
	"github.com/starla/dqnstop/experiment/checkpointer"
	"github.com/starla/dqnstop/experiment/tracker"
)

// framer is implemented by environments which can render their current
// state to a PNG file
type framer interface {
	SaveFrame(path string, width, height int) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.NewViper()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd returns the dqnstop command with its train and evaluate
// subcommands. Flags are bound to v when a command runs.
func newRootCmd(v *viper.Viper) *cobra.Command {
	logLevel := &slog.LevelVar{}

	rootCmd := &cobra.Command{
		Use:   "dqnstop",
		Short: "Train DQN on Mountain Car until its failure rate is low enough",
		Long: `dqnstop trains a deep Q-network on the Mountain Car task. Every
eval-frequency steps after start-on-steps, the greedy policy is evaluated on a
separate Mountain Car instance, and training stops as soon as the fraction of
evaluation episodes which fail to reach the goal is at most failure-rate.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(v, cmd.Flags())
			if v.GetBool(FlagVerbose) {
				logLevel.Set(slog.LevelDebug)
			}
			return nil
		},
	}

	// Persistent flags available to all commands
	flags := rootCmd.PersistentFlags()
	flags.Bool(FlagVerbose, false, "Enable verbose (debug) logging")
	flags.String(FlagConfig, "", "Config file path")
	flags.String(FlagLogFile, "", "Log file path (default: stderr)")
	flags.Uint64(FlagSeed, 0, "Random seed")
	flags.String(FlagModel, "", "Model file path")
	flags.Int(FlagEvalFrequency, 0, "Training steps between evaluations")
	flags.Int(FlagEvalEpisodes, 0, "Episodes per evaluation")
	flags.Float64(FlagFailureRate, 0, "Failure rate at or below which training stops")
	flags.Int(FlagStartOnSteps, 0, "Training steps before the first evaluation")
	flags.String(FlagEvalConvention, "", "Episode ending counted as failure (truncation|termination)")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a DQN agent with failure rate early stopping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), v, logLevel, cmd.OutOrStdout())
		},
	}
	trainCmd.Flags().Int(FlagTotalSteps, 0, "Maximum number of training steps")
	trainCmd.Flags().String(FlagReturns, "", "File to save episodic returns to")
	trainCmd.Flags().String(FlagEpisodeLengths, "", "File to save episode lengths to")
	trainCmd.Flags().Int(FlagCheckpointEvery, 0, "Save the model every N steps (0 disables)")
	trainCmd.Flags().String(FlagCheckpointNames, "", "Checkpoint file naming (step|enumerate|latest)")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure the failure rate of a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(v, logLevel, cmd.OutOrStdout())
		},
	}
	evaluateCmd.Flags().String(FlagFrames, "", "Directory to write PNG frames of one greedy episode to")
	evaluateCmd.Flags().Int(FlagFrameWidth, 600, "Frame width in pixels")
	evaluateCmd.Flags().Int(FlagFrameHeight, 400, "Frame height in pixels")

	rootCmd.AddCommand(trainCmd, evaluateCmd)
	return rootCmd
}

// bindFlags binds each flag to the configuration key it overrides, or
// to its own name if it overrides no configuration key
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		_ = v.BindPFlag(key, f)
	})
}

// setup loads the configuration and creates the logger
func setup(v *viper.Viper, logLevel *slog.LevelVar) (*config.Config,
	*LoggerResult, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}

	logs, err := SetupLogger(cfg.Paths.Log, logLevel, cfg.LogRotation)
	if err != nil {
		return nil, nil, errors.Wrap(err, "setup logger")
	}
	return cfg, logs, nil
}

// runTrain trains a DeepQ agent until the stopper halts training or the
// maximum number of steps is reached, then saves the model
func runTrain(ctx context.Context, v *viper.Viper, logLevel *slog.LevelVar,
	out io.Writer) error {
	cfg, logs, err := setup(v, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logs.Close() }()
	logger := logs.Logger

	// Training and evaluation use independent environments
	trainEnv, _, err := cfg.Environment.Create(cfg.Seed)
	if err != nil {
		return errors.Wrap(err, "create training environment")
	}
	evalEnv, _, err := cfg.Environment.Create(cfg.Seed + 1)
	if err != nil {
		return errors.Wrap(err, "create evaluation environment")
	}

	agent, err := deepq.New(trainEnv, cfg.Agent, cfg.Seed,
		logger.With("component", "deepq"))
	if err != nil {
		return errors.Wrap(err, "create agent")
	}
	defer func() { _ = agent.Close() }()

	stopper, err := callback.NewFailureRate(evalEnv, cfg.Stopper,
		logger.With("component", "stopper"))
	if err != nil {
		return errors.Wrap(err, "create stopper")
	}

	var checks []checkpointer.Checkpointer
	if cfg.CheckpointEvery > 0 {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.Checkpoints),
			0o755); err != nil {
			return errors.Wrap(err, "create checkpoint directory")
		}
		namer, err := cfg.CheckpointNaming.Namer(cfg.Paths.Checkpoints, ".bin")
		if err != nil {
			return err
		}
		check, err := checkpointer.NewNStep(cfg.CheckpointEvery, agent, namer)
		if err != nil {
			return err
		}
		checks = append(checks, check)
	}

	var exp experiment.Experiment = experiment.NewOnline(trainEnv, agent,
		cfg.Agent.TotalSteps, nil, checks, stopper, logger)

	// Trackers with an empty path are kept in memory for the summary
	returns := tracker.NewReturn(cfg.Paths.Returns)
	exp.Register(returns)
	exp.Register(tracker.NewEpisodeLength(cfg.Paths.EpisodeLengths))

	logger.Info("training started",
		"seed", cfg.Seed,
		"total_steps", cfg.Agent.TotalSteps,
		"eval_frequency", cfg.Stopper.EvalFrequency,
		"num_eval_episodes", cfg.Stopper.NumEvalEpisodes,
		"failure_rate_threshold", cfg.Stopper.FailureRateThreshold,
		"start_on_steps", cfg.Stopper.StartOnSteps,
	)
	start := time.Now()

	steps, err := exp.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("training interrupted, saving model", "steps", steps)
	} else if err != nil {
		return errors.Wrap(err, "train")
	}
	fmt.Fprintf(out, "Training stops after %d steps.\n", steps)

	if err := saveModel(cfg.Paths.Model, agent); err != nil {
		return err
	}

	if err := exp.Save(); err != nil {
		return errors.Wrap(err, "save tracked data")
	}

	mean, std := tracker.Summary(returns.Data())
	attrs := []any{
		"steps", steps,
		"halted", stopper.Halted(),
		"episodes", len(returns.Data()),
		"mean_return", mean,
		"std_return", std,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"model", cfg.Paths.Model,
	}
	if outcome, ok := stopper.LastOutcome(); ok {
		attrs = append(attrs, "failure_rate", outcome.Rate())
	}
	logger.Info("training finished", attrs...)
	return nil
}

// saveModel saves the agent's Q-network to path, creating its directory
// if needed
func saveModel(path string, agent *deepq.DeepQ) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create model directory")
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create model file")
	}
	if err := agent.Save(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// runEvaluate loads a saved model and measures its failure rate once
func runEvaluate(v *viper.Viper, logLevel *slog.LevelVar,
	out io.Writer) error {
	cfg, logs, err := setup(v, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logs.Close() }()
	logger := logs.Logger

	evalEnv, _, err := cfg.Environment.Create(cfg.Seed + 1)
	if err != nil {
		return errors.Wrap(err, "create evaluation environment")
	}

	agent, err := deepq.New(evalEnv, cfg.Agent, cfg.Seed, logger)
	if err != nil {
		return errors.Wrap(err, "create agent")
	}
	defer func() { _ = agent.Close() }()

	file, err := os.Open(cfg.Paths.Model)
	if err != nil {
		return errors.Wrap(err, "open model")
	}
	err = agent.Load(file)
	_ = file.Close()
	if err != nil {
		return err
	}
	agent.Eval()

	stopper, err := callback.NewFailureRate(evalEnv, cfg.Stopper, logger)
	if err != nil {
		return errors.Wrap(err, "create stopper")
	}
	outcome, err := stopper.Evaluate(agent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Failure rate: %v\n", outcome)

	if dir := v.GetString(FlagFrames); dir != "" {
		n, err := renderEpisode(cfg, agent, dir, v.GetInt(FlagFrameWidth),
			v.GetInt(FlagFrameHeight))
		if err != nil {
			return errors.Wrap(err, "render episode")
		}
		logger.Info("rendered episode", "frames", n, "dir", dir)
	}
	return nil
}

// renderEpisode runs one greedy episode on a fresh environment and
// writes a PNG frame of every state to dir. It returns the number of
// frames written.
func renderEpisode(cfg *config.Config, agent *deepq.DeepQ, dir string,
	width, height int) (int, error) {
	e, step, err := cfg.Environment.Create(cfg.Seed + 2)
	if err != nil {
		return 0, err
	}
	f, ok := e.(framer)
	if !ok {
		return 0, fmt.Errorf("environment %v cannot be rendered",
			cfg.Environment.Environment)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	save := func(i int) error {
		return f.SaveFrame(filepath.Join(dir, fmt.Sprintf("frame-%04d.png", i)),
			width, height)
	}

	frames := 0
	for ; ; frames++ {
		if err := save(frames); err != nil {
			return frames, err
		}
		if step.Last() {
			return frames + 1, nil
		}

		action, _, err := agent.Predict(step.Observation, nil, true)
		if err != nil {
			return frames, err
		}
		if step, _, err = e.Step(action); err != nil {
			return frames, err
		}
	}
}
