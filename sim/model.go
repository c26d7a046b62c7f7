package sim

import "fmt"

// Sample is one labelled example.
type Sample struct {
	Features []float64
	Label    int
}

// Dataset is random-access labelled data. Implementations live in sim/dataset.
type Dataset interface {
	Len() int
	Sample(i int) Sample
}

// Batch is a mini-batch materialized from dataset indices.
type Batch struct {
	X [][]float64
	Y []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Y)
}

// NewBatch gathers the samples at indices from ds.
func NewBatch(ds Dataset, indices []int) (Batch, error) {
	b := Batch{X: make([][]float64, len(indices)), Y: make([]int, len(indices))}
	n := ds.Len()
	for i, idx := range indices {
		if idx < 0 || idx >= n {
			return Batch{}, fmt.Errorf("sample index %d out of range [0,%d)", idx, n)
		}
		s := ds.Sample(idx)
		b.X[i] = s.Features
		b.Y[i] = s.Label
	}
	return b, nil
}

// Model is an opaque trainable unit. Implementations live in sim/model.
//
// Load copies params into the model; State returns a deep copy of the current
// parameters, so later training never changes a snapshot already returned.
type Model interface {
	Load(params ParameterSet) error
	State() ParameterSet
	// Train switches to training mode; Step is only valid in training mode.
	Train()
	// Eval switches to evaluation mode.
	Eval()
	// Step runs forward and backward passes over the batch and applies one SGD
	// update with learning rate lr. Returns the batch mean loss.
	Step(batch Batch, lr float64) (float64, error)
	// Forward returns the summed loss and number of correct predictions over the batch.
	Forward(batch Batch) (lossSum float64, correct int, err error)
}

// ModelFactory constructs fresh model replicas of one architecture.
type ModelFactory func() (Model, error)
