package sim

import (
	"fmt"
	"math/rand"
)

// EvalMetrics is the result of evaluating a model snapshot on a dataset.
type EvalMetrics struct {
	Accuracy float64 `json:"accuracy"` // percent, 0-100
	Loss     float64 `json:"loss"`     // mean cross-entropy per sample
}

// Evaluator scores a parameter snapshot on a dataset.
type Evaluator interface {
	Evaluate(params ParameterSet, ds Dataset) (EvalMetrics, error)
}

// ModelEvaluator evaluates snapshots by loading them into a fresh replica.
//
// When TestSize > 0 and smaller than the dataset, a random subset of TestSize
// samples (without replacement) is drawn from RNG for every call.
type ModelEvaluator struct {
	Factory   ModelFactory
	BatchSize int
	TestSize  int
	RNG       *rand.Rand
}

// Evaluate implements Evaluator.
func (e *ModelEvaluator) Evaluate(params ParameterSet, ds Dataset) (EvalMetrics, error) {
	model, err := e.Factory()
	if err != nil {
		return EvalMetrics{}, err
	}
	if err := model.Load(params); err != nil {
		return EvalMetrics{}, fmt.Errorf("loading snapshot for evaluation: %w", err)
	}
	model.Eval()

	indices := e.indices(ds.Len())
	if len(indices) == 0 {
		return EvalMetrics{}, fmt.Errorf("%w: empty evaluation set", ErrInsufficientData)
	}
	bs := e.BatchSize
	if bs < 1 {
		bs = len(indices)
	}

	lossSum, correct := 0.0, 0
	for start := 0; start < len(indices); start += bs {
		end := min(start+bs, len(indices))
		batch, err := NewBatch(ds, indices[start:end])
		if err != nil {
			return EvalMetrics{}, err
		}
		l, c, err := model.Forward(batch)
		if err != nil {
			return EvalMetrics{}, err
		}
		lossSum += l
		correct += c
	}

	n := float64(len(indices))
	return EvalMetrics{
		Accuracy: 100 * float64(correct) / n,
		Loss:     lossSum / n,
	}, nil
}

func (e *ModelEvaluator) indices(n int) []int {
	if e.TestSize > 0 && e.TestSize < n && e.RNG != nil {
		return e.RNG.Perm(n)[:e.TestSize]
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
