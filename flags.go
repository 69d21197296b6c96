package main

// Flag names for Viper binding
const (
	// Global flags
	FlagVerbose = "verbose"
	FlagConfig  = "config"
	FlagLogFile = "log-file"
	FlagSeed    = "seed"

	// Train command flags
	FlagTotalSteps      = "total-steps"
	FlagModel           = "model"
	FlagReturns         = "returns"
	FlagEpisodeLengths  = "episode-lengths"
	FlagCheckpointEvery = "checkpoint-every"
	FlagCheckpointNames = "checkpoint-naming"

	// Stopper flags, shared by the train and evaluate commands
	FlagEvalFrequency  = "eval-frequency"
	FlagEvalEpisodes   = "eval-episodes"
	FlagFailureRate    = "failure-rate"
	FlagStartOnSteps   = "start-on-steps"
	FlagEvalConvention = "convention"

	// Evaluate command flags
	FlagFrames      = "frames"
	FlagFrameWidth  = "frame-width"
	FlagFrameHeight = "frame-height"
)

// flagKeys maps flags to the configuration keys they override
var flagKeys = map[string]string{
	FlagSeed:            "seed",
	FlagTotalSteps:      "agent.total_steps",
	FlagModel:           "paths.model",
	FlagReturns:         "paths.returns",
	FlagEpisodeLengths:  "paths.episode_lengths",
	FlagCheckpointEvery: "checkpoint_every",
	FlagCheckpointNames: "checkpoint_naming",
	FlagLogFile:         "paths.log",
	FlagEvalFrequency:   "stopper.eval_frequency",
	FlagEvalEpisodes:    "stopper.num_eval_episodes",
	FlagFailureRate:     "stopper.failure_rate_threshold",
	FlagStartOnSteps:    "stopper.start_on_steps",
	FlagEvalConvention:  "stopper.convention",
}
