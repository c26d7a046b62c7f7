package sim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/dataset"
	"github.com/inference-sim/fedsim/sim/model"
)

// runBlobs trains logistic regression on IID-partitioned blobs.
func runBlobs(t *testing.T, policy string, workers int) *sim.Result {
	t.Helper()
	train, test, err := dataset.Load(dataset.NameBlobs, dataset.Options{
		NumClasses: 4, Features: 4, TrainSamples: 1000, TestSamples: 200, Spread: 0.5, Seed: 1,
	})
	require.NoError(t, err)

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(5))
	pm, err := dataset.IID(train.Len(), 10, rng.ForSubsystem(sim.SubsystemPartition))
	require.NoError(t, err)

	factory, err := model.New(model.NameLogReg, model.Options{Features: 4, NumClasses: 4, Seed: 5})
	require.NoError(t, err)
	replica, err := factory()
	require.NoError(t, err)

	cfg := sim.Config{
		NumClients: 10,
		Rounds:     5,
		EvalEvery:  2,
		Seed:       5,
		Workers:    workers,
		Sampling:   sim.SamplingConfig{Fraction: 0.4, Policy: policy},
		Local:      sim.TrainOptions{LocalEpochs: 2, BatchSize: 10, LR: 0.1},
		Schedule:   sim.ScheduleConfig{LRIntervals: []float64{0.6}, LRReduce: 2},
	}
	o, err := sim.NewOrchestrator(cfg, replica.State(), sim.Collaborators{
		Partitions: pm,
		Trainer:    sim.NewModelTrainer(factory, train),
		Evaluator:  &sim.ModelEvaluator{Factory: factory, BatchSize: 50},
		TrainSet:   train,
		TestSet:    test,
		Metrics:    sim.NewMetrics(),
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestSimulation_LearnsBlobsWithEveryPolicy(t *testing.T) {
	for _, policy := range sim.SelectionPolicyNames() {
		t.Run(policy, func(t *testing.T) {
			res := runBlobs(t, policy, 1)

			require.NotNil(t, res.Final)
			assert.Greater(t, res.Final.TestAccuracy, 60.0)
			assert.Len(t, res.History.Rounds, 5)
			assert.Len(t, res.History.Evaluations(), 3)
			for _, sel := range res.History.Selections() {
				assert.Len(t, sel, 4)
			}
		})
	}
}

func TestSimulation_DeterministicAcrossWorkerCounts(t *testing.T) {
	a := runBlobs(t, sim.PolicyBiggestLoss, 1)
	b := runBlobs(t, sim.PolicyBiggestLoss, 8)

	assert.Equal(t, a.History.Selections(), b.History.Selections())
	assert.Equal(t, a.Global, b.Global)
	assert.Equal(t, *a.Final, *b.Final)
}
