package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/dataset"
	"github.com/inference-sim/fedsim/sim/model"
)

// RunConfig is the full configuration of one `fedsim run`, loadable from YAML.
// Field names follow the command-line flags.
type RunConfig struct {
	// Federated core
	NumClients      int       `yaml:"num_clients"`
	Frac            float64   `yaml:"frac"`
	CandidateFrac   float64   `yaml:"candidate_frac"`
	CandidateMode   string    `yaml:"candidate_mode"`
	ClientSelection string    `yaml:"client_selection"`
	LocalEpochs     int       `yaml:"local_ep"`
	LocalBS         int       `yaml:"local_bs"`
	LR              float64   `yaml:"lr"`
	LRInterval      []float64 `yaml:"lr_interval"`
	LRReduce        float64   `yaml:"lr_reduce"`
	EvalEvery       int       `yaml:"eval_every"`
	Rounds          int       `yaml:"rounds"`
	Seed            int64     `yaml:"seed"`
	Workers         int       `yaml:"workers"`

	// Dataset and partitioning
	Dataset          string  `yaml:"dataset"`
	IID              bool    `yaml:"iid"`
	NumClasses       int     `yaml:"num_classes"`
	ClassesPerClient int     `yaml:"classes_per_client"`
	Features         int     `yaml:"features"`
	TrainSamples     int     `yaml:"train_samples"`
	TestSamples      int     `yaml:"test_samples"`
	Spread           float64 `yaml:"spread"`
	TestSize         int     `yaml:"test_size"` // 0 = evaluate on the whole set

	// Model
	Model           string `yaml:"model"`
	Hidden          int    `yaml:"hidden"`
	PretrainedModel string `yaml:"pretrained_model"`

	// Output
	ResultDir       string `yaml:"result_dir"`
	MetricsTextfile bool   `yaml:"metrics_textfile"`
	LogLevel        string `yaml:"log_level"`
}

// DefaultRunConfig returns the configuration used when neither flags nor a file set a value.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumClients:       100,
		Frac:             0.1,
		ClientSelection:  sim.PolicyRandom,
		LocalEpochs:      5,
		LocalBS:          10,
		LR:               0.05,
		LRInterval:       []float64{0.5, 0.75},
		LRReduce:         5,
		EvalEvery:        5,
		Rounds:           50,
		Seed:             1,
		Workers:          1,
		Dataset:          dataset.NameBlobs,
		IID:              false,
		NumClasses:       10,
		ClassesPerClient: 2,
		Features:         20,
		TrainSamples:     10000,
		TestSamples:      2000,
		Spread:           1.0,
		Model:            model.NameLogReg,
		Hidden:           32,
		ResultDir:        "results",
		MetricsTextfile:  true,
		LogLevel:         "info",
	}
}

// LoadRunConfig reads a YAML run config on top of DefaultRunConfig.
// Unknown keys are rejected so typos cannot silently fall back to defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config: %w", err)
	}
	return cfg, nil
}

// SimConfig converts the federated options into the orchestrator config.
func (c RunConfig) SimConfig() sim.Config {
	return sim.Config{
		NumClients: c.NumClients,
		Rounds:     c.Rounds,
		EvalEvery:  c.EvalEvery,
		Seed:       c.Seed,
		Workers:    c.Workers,
		Sampling: sim.SamplingConfig{
			Fraction:          c.Frac,
			CandidateFraction: c.CandidateFrac,
			CandidateMode:     sim.CandidateMode(c.CandidateMode),
			Policy:            c.ClientSelection,
		},
		Local: sim.TrainOptions{
			LocalEpochs: c.LocalEpochs,
			BatchSize:   c.LocalBS,
			LR:          c.LR,
		},
		Schedule: sim.ScheduleConfig{
			LRIntervals: c.LRInterval,
			LRReduce:    c.LRReduce,
		},
	}
}

// Validate checks the federated options and the collaborator options.
func (c RunConfig) Validate() error {
	if err := c.SimConfig().Validate(); err != nil {
		return err
	}
	if !dataset.ValidDatasets[c.Dataset] {
		return fmt.Errorf("%w %q", sim.ErrUnrecognizedDataset, c.Dataset)
	}
	if !c.IID && (c.ClassesPerClient < 1 || c.ClassesPerClient > c.NumClasses) {
		return fmt.Errorf("classes per client must be in [1,%d], got %d", c.NumClasses, c.ClassesPerClient)
	}
	if c.TestSize < 0 {
		return fmt.Errorf("test size must be >= 0, got %d", c.TestSize)
	}
	return nil
}
