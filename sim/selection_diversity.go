package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GradDiversity picks m results whose update directions are mutually dissimilar.
//
// Greedy farthest-point selection over cosine distance (1 - cos) between the
// flattened deltas:
//  1. start from the delta with the largest L2 norm;
//  2. repeatedly add the candidate whose minimum distance to the already
//     selected set is largest.
//
// Ties at every step go to the lowest index, so equal inputs always yield the
// same selection. A zero delta has cosine similarity 0 with everything.
type GradDiversity struct{}

// Select implements SelectionPolicy for GradDiversity.
func (GradDiversity) Select(in SelectionInput) (Selection, error) {
	if err := validateCount(in.Count, len(in.Results)); err != nil {
		return Selection{}, err
	}
	ds, err := deltas(in.Results, in.Global)
	if err != nil {
		return Selection{}, err
	}

	n := len(ds)
	vecs := make([][]float64, n)
	norms := make([]float64, n)
	for i, d := range ds {
		vecs[i] = d.Flatten()
		norms[i] = floats.Norm(vecs[i], 2)
	}

	first := 0
	for i := 1; i < n; i++ {
		if norms[i] > norms[first] {
			first = i
		}
	}

	selected := make([]int, 0, in.Count)
	taken := make([]bool, n)
	minDist := make([]float64, n)
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}

	next := first
	for {
		selected = append(selected, next)
		taken[next] = true
		if len(selected) == in.Count {
			break
		}
		for i := range vecs {
			if taken[i] {
				continue
			}
			d := cosineDistance(vecs[i], norms[i], vecs[next], norms[next])
			if d < minDist[i] {
				minDist[i] = d
			}
		}
		next = -1
		for i := range vecs {
			if taken[i] {
				continue
			}
			if next == -1 || minDist[i] > minDist[next] {
				next = i
			}
		}
	}
	return Selection{Indices: selected}, nil
}

func cosineDistance(a []float64, na float64, b []float64, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}
