package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// CLI flags; defaults come from DefaultRunConfig
	flagCfg    = DefaultRunConfig()
	configPath string // optional YAML run config; explicitly set flags override it
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fedsim",
	Short: "Federated learning simulation harness",
}

// runCmd executes a federated training simulation using parameters from flags, YAML and environment
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a federated training simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveRunConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		// Set up logging
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", cfg.LogLevel)
		}
		logrus.SetLevel(level)

		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		run, err := Simulate(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		PrintSummary(os.Stdout, cfg, run.Result)

		if cfg.ResultDir != "" {
			if err := run.Export(cfg); err != nil {
				logrus.Fatalf("Exporting results: %v", err)
			}
			logrus.Infof("Results written to %s", cfg.ResultDir)
		}
		logrus.Info("Simulation complete.")
	},
}

// resolveRunConfig layers defaults, the YAML file, environment overrides and explicitly set flags.
func resolveRunConfig(cmd *cobra.Command) (RunConfig, error) {
	cfg := flagCfg
	if configPath != "" {
		loaded, err := LoadRunConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		for name, copyFlag := range flagOverrides {
			if cmd.Flags().Changed(name) {
				copyFlag(&cfg, &flagCfg)
			}
		}
	}
	e, err := loadEnvConfig()
	if err != nil {
		return cfg, err
	}
	e.apply(&cfg, cmd.Flags().Changed)
	return cfg, nil
}

// flagOverrides copies one flag-bound field from src to dst, keyed by flag name.
var flagOverrides = map[string]func(dst, src *RunConfig){
	"num-clients":        func(d, s *RunConfig) { d.NumClients = s.NumClients },
	"frac":               func(d, s *RunConfig) { d.Frac = s.Frac },
	"candidate-frac":     func(d, s *RunConfig) { d.CandidateFrac = s.CandidateFrac },
	"candidate-mode":     func(d, s *RunConfig) { d.CandidateMode = s.CandidateMode },
	"client-selection":   func(d, s *RunConfig) { d.ClientSelection = s.ClientSelection },
	"local-ep":           func(d, s *RunConfig) { d.LocalEpochs = s.LocalEpochs },
	"local-bs":           func(d, s *RunConfig) { d.LocalBS = s.LocalBS },
	"lr":                 func(d, s *RunConfig) { d.LR = s.LR },
	"lr-interval":        func(d, s *RunConfig) { d.LRInterval = s.LRInterval },
	"lr-reduce":          func(d, s *RunConfig) { d.LRReduce = s.LRReduce },
	"eval-every":         func(d, s *RunConfig) { d.EvalEvery = s.EvalEvery },
	"rounds":             func(d, s *RunConfig) { d.Rounds = s.Rounds },
	"seed":               func(d, s *RunConfig) { d.Seed = s.Seed },
	"workers":            func(d, s *RunConfig) { d.Workers = s.Workers },
	"dataset":            func(d, s *RunConfig) { d.Dataset = s.Dataset },
	"iid":                func(d, s *RunConfig) { d.IID = s.IID },
	"num-classes":        func(d, s *RunConfig) { d.NumClasses = s.NumClasses },
	"classes-per-client": func(d, s *RunConfig) { d.ClassesPerClient = s.ClassesPerClient },
	"features":           func(d, s *RunConfig) { d.Features = s.Features },
	"train-samples":      func(d, s *RunConfig) { d.TrainSamples = s.TrainSamples },
	"test-samples":       func(d, s *RunConfig) { d.TestSamples = s.TestSamples },
	"spread":             func(d, s *RunConfig) { d.Spread = s.Spread },
	"test-size":          func(d, s *RunConfig) { d.TestSize = s.TestSize },
	"model":              func(d, s *RunConfig) { d.Model = s.Model },
	"hidden":             func(d, s *RunConfig) { d.Hidden = s.Hidden },
	"pretrained-model":   func(d, s *RunConfig) { d.PretrainedModel = s.PretrainedModel },
	"result-dir":         func(d, s *RunConfig) { d.ResultDir = s.ResultDir },
	"metrics-textfile":   func(d, s *RunConfig) { d.MetricsTextfile = s.MetricsTextfile },
	"log":                func(d, s *RunConfig) { d.LogLevel = s.LogLevel },
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	f := runCmd.Flags()
	c := &flagCfg

	f.StringVar(&configPath, "config", "", "YAML run config; explicitly set flags take precedence")
	f.StringVar(&c.LogLevel, "log", c.LogLevel, "Log level (trace, debug, info, warn, error, fatal, panic)")
	f.Int64Var(&c.Seed, "seed", c.Seed, "Master seed for partitioning, sampling, selection and initialization")

	// Federated round configs
	f.IntVar(&c.NumClients, "num-clients", c.NumClients, "Number of simulated clients")
	f.IntVar(&c.Rounds, "rounds", c.Rounds, "Number of federated rounds")
	f.Float64Var(&c.Frac, "frac", c.Frac, "Fraction of clients aggregated per round")
	f.Float64Var(&c.CandidateFrac, "candidate-frac", c.CandidateFrac, "Fraction of clients sampled as candidates per round (0 = all eligible)")
	f.StringVar(&c.CandidateMode, "candidate-mode", c.CandidateMode, "Candidate sampling mode: random or weighted (default weighted when candidate-frac is set)")
	f.StringVar(&c.ClientSelection, "client-selection", c.ClientSelection, "Client selection policy: random, biggest_loss, grad_diversity, update_norm")
	f.IntVar(&c.Workers, "workers", c.Workers, "Concurrent local trainings per round")
	f.IntVar(&c.EvalEvery, "eval-every", c.EvalEvery, "Evaluate the global model every N rounds")

	// Local training configs
	f.IntVar(&c.LocalEpochs, "local-ep", c.LocalEpochs, "Local epochs per round")
	f.IntVar(&c.LocalBS, "local-bs", c.LocalBS, "Local batch size")
	f.Float64Var(&c.LR, "lr", c.LR, "Initial learning rate")
	f.Float64SliceVar(&c.LRInterval, "lr-interval", c.LRInterval, "Comma-separated LR milestones as fractions of the round count")
	f.Float64Var(&c.LRReduce, "lr-reduce", c.LRReduce, "LR divisor applied at each milestone")

	// Dataset configs
	f.StringVar(&c.Dataset, "dataset", c.Dataset, "Dataset name")
	f.BoolVar(&c.IID, "iid", c.IID, "Partition IID instead of by class")
	f.IntVar(&c.NumClasses, "num-classes", c.NumClasses, "Number of classes")
	f.IntVar(&c.ClassesPerClient, "classes-per-client", c.ClassesPerClient, "Classes held by each client in non-IID mode")
	f.IntVar(&c.Features, "features", c.Features, "Feature dimension")
	f.IntVar(&c.TrainSamples, "train-samples", c.TrainSamples, "Training set size")
	f.IntVar(&c.TestSamples, "test-samples", c.TestSamples, "Test set size")
	f.Float64Var(&c.Spread, "spread", c.Spread, "Standard deviation of samples around their class center")
	f.IntVar(&c.TestSize, "test-size", c.TestSize, "Evaluate on a random subset of this size (0 = whole set)")

	// Model configs
	f.StringVar(&c.Model, "model", c.Model, "Model architecture: logreg or mlp")
	f.IntVar(&c.Hidden, "hidden", c.Hidden, "Hidden units (mlp)")
	f.StringVar(&c.PretrainedModel, "pretrained-model", c.PretrainedModel, "JSON parameter file to start from")

	// Output configs
	f.StringVar(&c.ResultDir, "result-dir", c.ResultDir, "Directory for result artifacts (empty = no export)")
	f.BoolVar(&c.MetricsTextfile, "metrics-textfile", c.MetricsTextfile, "Write prometheus metrics to the result directory")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
