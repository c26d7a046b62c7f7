package sim

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Aggregator combines the selected clients' parameters into a new global state.
type Aggregator interface {
	Aggregate(selected []LocalResult, global ParameterSet) (ParameterSet, error)
}

// FedAvg is the sample-count-weighted parameter average:
//
//	out[k] = Σ_i (n_i / Σ_j n_j) · params_i[k]
//
// global is not read; deltas are materialized into parameters before aggregation.
type FedAvg struct{}

// NewFedAvg returns the FedAvg aggregator.
func NewFedAvg() Aggregator {
	return FedAvg{}
}

// Aggregate implements Aggregator for FedAvg.
func (FedAvg) Aggregate(selected []LocalResult, _ ParameterSet) (ParameterSet, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no results to aggregate", ErrInvalidSelection)
	}

	first := selected[0].Params
	total := 0
	for _, r := range selected {
		if r.SampleCount <= 0 {
			return nil, fmt.Errorf("%w: client %d trained on %d samples", ErrInsufficientData, r.Client, r.SampleCount)
		}
		if err := first.Compatible(r.Params); err != nil {
			return nil, fmt.Errorf("client %d vs client %d: %w", r.Client, selected[0].Client, err)
		}
		total += r.SampleCount
	}

	out := make(ParameterSet, len(first))
	for k, t := range first {
		out[k] = Tensor{Shape: slices.Clone(t.Shape), Data: make([]float64, len(t.Data))}
	}
	for _, r := range selected {
		w := float64(r.SampleCount) / float64(total)
		for k, t := range r.Params {
			floats.AddScaled(out[k].Data, w, t.Data)
		}
	}
	return out, nil
}
