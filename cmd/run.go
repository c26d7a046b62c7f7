package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/dataset"
	"github.com/inference-sim/fedsim/sim/export"
	"github.com/inference-sim/fedsim/sim/model"
)

// Run is a finished simulation and the metrics it recorded.
type Run struct {
	Result  *sim.Result
	Metrics *sim.Metrics
}

// Simulate wires the dataset, partitioner, model, evaluator and orchestrator
// described by cfg and runs every round.
func Simulate(ctx context.Context, cfg RunConfig) (*Run, error) {
	train, test, err := dataset.Load(cfg.Dataset, dataset.Options{
		NumClasses:   cfg.NumClasses,
		Features:     cfg.Features,
		TrainSamples: cfg.TrainSamples,
		TestSamples:  cfg.TestSamples,
		Spread:       cfg.Spread,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	var partitions sim.PartitionMap
	if cfg.IID {
		partitions, err = dataset.IID(train.Len(), cfg.NumClients, rng.ForSubsystem(sim.SubsystemPartition))
	} else {
		partitions, err = dataset.NonIID(train.Labels(), cfg.NumClasses, cfg.NumClients, cfg.ClassesPerClient,
			rng.ForSubsystem(sim.SubsystemPartition))
	}
	if err != nil {
		return nil, fmt.Errorf("partitioning dataset: %w", err)
	}

	factory, err := model.New(cfg.Model, model.Options{
		Features:   cfg.Features,
		NumClasses: cfg.NumClasses,
		Hidden:     cfg.Hidden,
		Seed:       rng.ForSubsystem(sim.SubsystemModelInit).Int63(),
	})
	if err != nil {
		return nil, err
	}
	initial, err := initialParameters(factory, cfg.PretrainedModel)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Model %s with %d parameters, %d clients holding %d samples",
		cfg.Model, initial.NumParams(), cfg.NumClients, partitions.TotalSize(cfg.NumClients))

	metrics := sim.NewMetrics()
	orch, err := sim.NewOrchestrator(cfg.SimConfig(), initial, sim.Collaborators{
		Partitions: partitions,
		Trainer:    sim.NewModelTrainer(factory, train),
		Evaluator: &sim.ModelEvaluator{
			Factory:   factory,
			BatchSize: cfg.LocalBS,
			TestSize:  cfg.TestSize,
			RNG:       rng.ForSubsystem(sim.SubsystemEval),
		},
		TrainSet: train,
		TestSet:  test,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}

	res, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &Run{Result: res, Metrics: metrics}, nil
}

// initialParameters returns a fresh replica's state, or the pretrained file's
// parameters after checking they fit the architecture.
func initialParameters(factory sim.ModelFactory, pretrained string) (sim.ParameterSet, error) {
	m, err := factory()
	if err != nil {
		return nil, err
	}
	if pretrained == "" {
		return m.State(), nil
	}
	params, err := export.ReadParameters(pretrained)
	if err != nil {
		return nil, err
	}
	if err := m.Load(params); err != nil {
		return nil, fmt.Errorf("pretrained model %s: %w", pretrained, err)
	}
	logrus.Infof("Loaded pretrained parameters from %s", pretrained)
	return m.State(), nil
}

// Export writes the run's artifacts into cfg.ResultDir.
func (r *Run) Export(cfg RunConfig) error {
	stem := export.FileStem(cfg.Dataset, cfg.Model, cfg.Rounds, cfg.Frac, cfg.IID)
	var m *sim.Metrics
	if cfg.MetricsTextfile {
		m = r.Metrics
	}
	if err := export.WriteAll(cfg.ResultDir, stem, r.Result, m); err != nil {
		return err
	}
	logrus.Debugf("Wrote %s", filepath.Join(cfg.ResultDir, export.ManifestFile))
	return nil
}
