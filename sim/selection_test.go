package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/fedsim/sim/internal/testutil"
)

func TestNewSelectionPolicy_ValidNames(t *testing.T) {
	tests := []struct {
		name string
		want SelectionPolicy
	}{
		{"", RandomSelection{}},
		{PolicyRandom, RandomSelection{}},
		{PolicyBiggestLoss, BiggestLoss{}},
		{PolicyGradDiversity, GradDiversity{}},
		{PolicyUpdateNorm, UpdateNorm{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSelectionPolicy(tt.name)
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestNewSelectionPolicy_Unknown(t *testing.T) {
	_, err := NewSelectionPolicy("oort")
	assert.ErrorIs(t, err, ErrUnrecognizedPolicy)
	assert.False(t, IsValidSelectionPolicy("oort"))
	assert.Equal(t, []string{PolicyBiggestLoss, PolicyGradDiversity, PolicyRandom, PolicyUpdateNorm}, SelectionPolicyNames())
}

func TestRegisterSelectionPolicy(t *testing.T) {
	const name = "first_two"
	t.Cleanup(func() { delete(selectionPolicies, name) })

	RegisterSelectionPolicy(name, func() SelectionPolicy {
		return SelectionPolicyFunc(func(in SelectionInput) (Selection, error) {
			return Selection{Indices: []int{0, 1}[:in.Count]}, nil
		})
	})
	p, err := NewSelectionPolicy(name)
	require.NoError(t, err)
	sel, err := p.Select(SelectionInput{Results: results(1, 2, 3), Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, sel.Indices)
}

func TestSelectionPolicies_CountExceedsCandidates(t *testing.T) {
	for _, name := range SelectionPolicyNames() {
		t.Run(name, func(t *testing.T) {
			p, err := NewSelectionPolicy(name)
			require.NoError(t, err)
			_, err = p.Select(SelectionInput{
				Results: results(0.1, 0.2),
				Global:  vec(0),
				Count:   3,
				RNG:     rand.New(rand.NewSource(1)),
			})
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestSelectionPolicies_SelectAll(t *testing.T) {
	// m == n selects every candidate exactly once
	for _, name := range SelectionPolicyNames() {
		t.Run(name, func(t *testing.T) {
			p, _ := NewSelectionPolicy(name)
			in := SelectionInput{Global: vec(0, 0), Count: 4, RNG: rand.New(rand.NewSource(2))}
			for i := 0; i < 4; i++ {
				in.Results = append(in.Results, LocalResult{
					Client: ClientID(i), Params: vec(float64(i), float64(-i)), Loss: float64(i), SampleCount: 5,
				})
			}
			sel, err := p.Select(in)
			require.NoError(t, err)
			assert.ElementsMatch(t, []int{0, 1, 2, 3}, sel.Indices)
		})
	}
}

func TestRandomSelection_ReproducibleWithSeed(t *testing.T) {
	in := func() SelectionInput {
		return SelectionInput{Results: results(1, 2, 3, 4, 5, 6), Count: 3, RNG: rand.New(rand.NewSource(9))}
	}
	a, err := RandomSelection{}.Select(in())
	require.NoError(t, err)
	b, err := RandomSelection{}.Select(in())
	require.NoError(t, err)
	assert.Equal(t, a.Indices, b.Indices)
	assert.Len(t, a.Indices, 3)
	assert.Nil(t, a.Deltas)
}

func TestRandomSelection_UniformFrequency(t *testing.T) {
	// GIVEN 8 trained candidates of which 2 are aggregated
	rng := rand.New(rand.NewSource(13))
	const n, m, draws = 8, 2, 20000

	// WHEN the policy runs many times on one stream
	counts := make([]int, n)
	for i := 0; i < draws; i++ {
		sel, err := RandomSelection{}.Select(SelectionInput{Results: results(1, 2, 3, 4, 5, 6, 7, 8), Count: m, RNG: rng})
		require.NoError(t, err)
		require.Len(t, sel.Indices, m)
		require.NotEqual(t, sel.Indices[0], sel.Indices[1])
		for _, idx := range sel.Indices {
			counts[idx]++
		}
	}

	// THEN each index is picked in about m/n of the runs
	for idx, c := range counts {
		assert.InDelta(t, float64(m)/n, float64(c)/draws, 0.02, "index %d", idx)
	}
}

func TestRandomSelection_RequiresRNG(t *testing.T) {
	_, err := RandomSelection{}.Select(SelectionInput{Results: results(1, 2), Count: 1})
	assert.Error(t, err)
}

func TestBiggestLoss_StableDescending(t *testing.T) {
	// GIVEN losses [0.1, 0.9, 0.5, 0.9] and m=2
	in := SelectionInput{Results: results(0.1, 0.9, 0.5, 0.9), Count: 2}

	// WHEN biggest_loss selects
	sel, err := BiggestLoss{}.Select(in)

	// THEN the two 0.9 results are chosen in input order
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, sel.Indices)
}

func TestBiggestLoss_Examples(t *testing.T) {
	tests := []struct {
		name   string
		losses []float64
		m      int
		want   []int
	}{
		{"single", []float64{0.3}, 1, []int{0}},
		{"all equal keeps order", []float64{1, 1, 1}, 2, []int{0, 1}},
		{"ascending input", []float64{0.1, 0.2, 0.3, 0.4}, 3, []int{3, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := BiggestLoss{}.Select(SelectionInput{Results: results(tt.losses...), Count: tt.m})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Indices)
		})
	}
}

func diversityInput(m int) SelectionInput {
	// two near-duplicate directions, one orthogonal, one opposite
	params := [][]float64{
		{1, 0},
		{1, 0.01},
		{0, 0.5},
		{-0.8, 0},
	}
	in := SelectionInput{Global: vec(0, 0), Count: m}
	for i, p := range params {
		in.Results = append(in.Results, LocalResult{Client: ClientID(i), Params: vec(p...), SampleCount: 10})
	}
	return in
}

func TestGradDiversity_PicksDissimilarUpdates(t *testing.T) {
	// GIVEN updates where 0 and 1 point the same way, 2 is orthogonal and 3 opposite
	// WHEN two are selected
	sel, err := GradDiversity{}.Select(diversityInput(2))

	// THEN the largest update comes first and its opposite second
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, sel.Indices)

	// AND a third pick adds the orthogonal direction, not the near-duplicate
	sel, err = GradDiversity{}.Select(diversityInput(3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2}, sel.Indices)
}

func TestGradDiversity_DeterministicAndUnique(t *testing.T) {
	a, err := GradDiversity{}.Select(diversityInput(4))
	require.NoError(t, err)
	b, err := GradDiversity{}.Select(diversityInput(4))
	require.NoError(t, err)
	assert.Equal(t, a.Indices, b.Indices)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, a.Indices)
	assert.Nil(t, a.Deltas)
}

func TestGradDiversity_ZeroUpdates(t *testing.T) {
	in := SelectionInput{Global: vec(1, 1), Count: 2}
	for i := 0; i < 3; i++ {
		in.Results = append(in.Results, LocalResult{Client: ClientID(i), Params: vec(1, 1), SampleCount: 1})
	}
	sel, err := GradDiversity{}.Select(in)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, sel.Indices)
}

func TestGradDiversity_IncompatibleResult(t *testing.T) {
	in := diversityInput(2)
	in.Results[2].Params = vec(1)
	_, err := GradDiversity{}.Select(in)
	assert.ErrorIs(t, err, ErrIncompatibleParameterSet)
}

func TestUpdateNorm_ScoresAndRescales(t *testing.T) {
	// GIVEN deltas with norms 1, 3, 2 and sample counts 10, 10, 20
	in := SelectionInput{
		Global: vec(1, 1),
		Count:  2,
		Results: []LocalResult{
			{Client: 0, Params: vec(2, 1), SampleCount: 10},
			{Client: 1, Params: vec(1, 4), SampleCount: 10},
			{Client: 2, Params: vec(1, -1), SampleCount: 20},
		},
	}

	// WHEN update_norm selects two
	sel, err := UpdateNorm{}.Select(in)
	require.NoError(t, err)

	// THEN scores 10, 30, 40 pick clients 2 and 1
	assert.Equal(t, []int{2, 1}, sel.Indices)

	// AND every delta is scaled by (20+10)/40
	require.Len(t, sel.Deltas, 3)
	c := 30.0 / 40.0
	testutil.AssertSliceClose(t, "delta0", []float64{c, 0}, sel.Deltas[0]["w"].Data, 1e-12)
	testutil.AssertSliceClose(t, "delta1", []float64{0, 3 * c}, sel.Deltas[1]["w"].Data, 1e-12)
	testutil.AssertSliceClose(t, "delta2", []float64{0, -2 * c}, sel.Deltas[2]["w"].Data, 1e-12)

	// AND the inputs are untouched
	assert.Equal(t, []float64{1, 4}, in.Results[1].Params["w"].Data)
}

func TestUpdateNorm_AllSelectedKeepsDeltas(t *testing.T) {
	in := SelectionInput{
		Global:  vec(0),
		Count:   2,
		Results: []LocalResult{{Params: vec(2), SampleCount: 1}, {Client: 1, Params: vec(-1), SampleCount: 3}},
	}
	sel, err := UpdateNorm{}.Select(in)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, sel.Indices)
	assert.Equal(t, []float64{2}, sel.Deltas[0]["w"].Data)
	assert.Equal(t, []float64{-1}, sel.Deltas[1]["w"].Data)
}
