package sim

import (
	"fmt"
	"math/rand"
	"slices"
)

// TrainOptions are the local hyperparameters for one client's training run.
type TrainOptions struct {
	LocalEpochs int     // full passes over the client's samples (>= 1)
	BatchSize   int     // mini-batch size (>= 1); a trailing partial batch is trained on
	LR          float64 // SGD learning rate (> 0)
}

// Validate checks the option ranges.
func (o TrainOptions) Validate() error {
	if o.LocalEpochs < 1 {
		return fmt.Errorf("local epochs must be >= 1, got %d", o.LocalEpochs)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("local batch size must be >= 1, got %d", o.BatchSize)
	}
	if o.LR <= 0 {
		return fmt.Errorf("learning rate must be > 0, got %f", o.LR)
	}
	return nil
}

// LocalTrainer trains one client's replica starting from the global snapshot.
// Implementations must not mutate global and must be safe to call from
// several goroutines at once, each call using its own replica and rng.
type LocalTrainer interface {
	Train(global ParameterSet, client ClientID, indices []int, opts TrainOptions, rng *rand.Rand) (LocalResult, error)
}

// ModelTrainer is the LocalTrainer backed by a ModelFactory and a training dataset.
type ModelTrainer struct {
	Factory ModelFactory
	Data    Dataset
}

// NewModelTrainer creates a ModelTrainer.
func NewModelTrainer(factory ModelFactory, data Dataset) *ModelTrainer {
	return &ModelTrainer{Factory: factory, Data: data}
}

// Train implements LocalTrainer.
//
// The reported loss is the mean of the per-batch losses of the final local epoch.
// SampleCount is LocalEpochs * len(indices).
func (t *ModelTrainer) Train(global ParameterSet, client ClientID, indices []int, opts TrainOptions, rng *rand.Rand) (LocalResult, error) {
	if len(indices) == 0 {
		return LocalResult{}, fmt.Errorf("%w: client %d has no samples", ErrInsufficientData, client)
	}
	if err := opts.Validate(); err != nil {
		return LocalResult{}, err
	}

	model, err := t.Factory()
	if err != nil {
		return LocalResult{}, fmt.Errorf("building replica for client %d: %w", client, err)
	}
	if err := model.Load(global); err != nil {
		return LocalResult{}, fmt.Errorf("loading global state for client %d: %w", client, err)
	}
	model.Train()

	order := slices.Clone(indices)
	var epochLoss float64
	for epoch := 0; epoch < opts.LocalEpochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		lossSum, batches := 0.0, 0
		for start := 0; start < len(order); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(order))
			batch, err := NewBatch(t.Data, order[start:end])
			if err != nil {
				return LocalResult{}, fmt.Errorf("client %d: %w", client, err)
			}
			loss, err := model.Step(batch, opts.LR)
			if err != nil {
				return LocalResult{}, fmt.Errorf("client %d epoch %d: %w", client, epoch, err)
			}
			lossSum += loss
			batches++
		}
		epochLoss = lossSum / float64(batches)
	}

	return LocalResult{
		Client:      client,
		Params:      model.State(),
		Loss:        epochLoss,
		SampleCount: opts.LocalEpochs * len(indices),
	}, nil
}
