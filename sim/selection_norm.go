package sim

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// UpdateNorm picks the m results that contribute most to the full-participation
// FedAvg update and rescales the deltas so the partial average approximates it.
//
// Each candidate i is scored n_i * ||delta_i|| (n_i = SampleCount). The m highest
// scores are selected (ties to the lowest index). Every delta is multiplied by
// c = sum(n_selected) / sum(n_all); after sample-weighted averaging over the
// selected set the global update becomes sum_selected(n_i * delta_i) / sum(n_all),
// i.e. the full-participation update with unselected clients counted as zero.
type UpdateNorm struct{}

// Select implements SelectionPolicy for UpdateNorm.
func (UpdateNorm) Select(in SelectionInput) (Selection, error) {
	if err := validateCount(in.Count, len(in.Results)); err != nil {
		return Selection{}, err
	}
	ds, err := deltas(in.Results, in.Global)
	if err != nil {
		return Selection{}, err
	}

	scores := make([]float64, len(ds))
	order := make([]int, len(ds))
	totalSamples := 0
	for i, d := range ds {
		scores[i] = float64(in.Results[i].SampleCount) * floats.Norm(d.Flatten(), 2)
		order[i] = i
		totalSamples += in.Results[i].SampleCount
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	picked := order[:in.Count]

	selectedSamples := 0
	for _, i := range picked {
		selectedSamples += in.Results[i].SampleCount
	}
	c := 1.0
	if totalSamples > 0 {
		c = float64(selectedSamples) / float64(totalSamples)
	}

	rescaled := make([]ParameterSet, len(ds))
	for i, d := range ds {
		rescaled[i] = d.Scale(c)
	}
	return Selection{Indices: picked, Deltas: rescaled}, nil
}
