// Package dataset provides synthetic classification datasets and the IID /
// non-IID partitioners that split them across simulated clients.
package dataset

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/fedsim/sim"
)

// Dataset names recognized by Load.
const (
	NameBlobs = "blobs"
)

// ValidDatasets is the set of recognized dataset names.
var ValidDatasets = map[string]bool{NameBlobs: true}

// Options parameterizes synthetic dataset generation.
type Options struct {
	NumClasses   int     // number of labels (>= 2)
	Features     int     // feature dimension (>= 1)
	TrainSamples int     // training set size
	TestSamples  int     // test set size
	Spread       float64 // per-feature standard deviation around a class center (default 1.0)
	Seed         int64
}

// InMemory is a Dataset backed by a slice.
type InMemory struct {
	samples []sim.Sample
}

// NewInMemory wraps samples as a Dataset.
func NewInMemory(samples []sim.Sample) *InMemory {
	return &InMemory{samples: samples}
}

// Len implements sim.Dataset.
func (d *InMemory) Len() int { return len(d.samples) }

// Sample implements sim.Dataset.
func (d *InMemory) Sample(i int) sim.Sample { return d.samples[i] }

// Labels returns the label of every sample in index order.
func (d *InMemory) Labels() []int {
	out := make([]int, len(d.samples))
	for i, s := range d.samples {
		out[i] = s.Label
	}
	return out
}

// Load builds the named dataset's train and test splits.
func Load(name string, opts Options) (train, test *InMemory, err error) {
	if !ValidDatasets[name] {
		return nil, nil, fmt.Errorf("%w %q", sim.ErrUnrecognizedDataset, name)
	}
	if opts.NumClasses < 2 {
		return nil, nil, fmt.Errorf("num classes must be >= 2, got %d", opts.NumClasses)
	}
	if opts.Features < 1 {
		return nil, nil, fmt.Errorf("features must be >= 1, got %d", opts.Features)
	}
	if opts.TrainSamples < 1 || opts.TestSamples < 1 {
		return nil, nil, fmt.Errorf("train and test sample counts must be >= 1, got %d/%d", opts.TrainSamples, opts.TestSamples)
	}
	if opts.Spread <= 0 {
		opts.Spread = 1.0
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centers := make([][]float64, opts.NumClasses)
	for c := range centers {
		centers[c] = make([]float64, opts.Features)
		for f := range centers[c] {
			centers[c][f] = rng.Float64()*6 - 3
		}
	}
	train = NewInMemory(blobs(centers, opts.TrainSamples, opts.Spread, rng))
	test = NewInMemory(blobs(centers, opts.TestSamples, opts.Spread, rng))
	return train, test, nil
}

// blobs draws n samples, labels uniform over the classes, features Gaussian around the class center.
func blobs(centers [][]float64, n int, spread float64, rng *rand.Rand) []sim.Sample {
	out := make([]sim.Sample, n)
	for i := range out {
		label := rng.Intn(len(centers))
		x := make([]float64, len(centers[label]))
		for f, c := range centers[label] {
			x[f] = c + rng.NormFloat64()*spread
		}
		out[i] = sim.Sample{Features: x, Label: label}
	}
	return out
}
