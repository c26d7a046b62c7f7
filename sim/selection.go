package sim

import (
	"fmt"
	"math/rand"
	"sort"
)

// SelectionInput is everything a client selection policy may look at.
// Results are ordered by client id; policies return indices into Results.
type SelectionInput struct {
	Results []LocalResult
	Global  ParameterSet // the round's initial global state
	Count   int          // number of results to select (m)
	RNG     *rand.Rand   // only used by randomized policies
}

// Selection is a policy decision.
//
// Deltas is nil for policies that only pick. When non-nil it is aligned with
// SelectionInput.Results and the orchestrator rebuilds each selected result's
// parameters as Global + Deltas[i] before aggregation.
type Selection struct {
	Indices []int
	Deltas  []ParameterSet
}

// SelectionPolicy picks which trained clients are aggregated.
// Implementations are pure functions of their input.
type SelectionPolicy interface {
	Select(in SelectionInput) (Selection, error)
}

// SelectionPolicyFunc adapts a function to SelectionPolicy.
type SelectionPolicyFunc func(in SelectionInput) (Selection, error)

// Select implements SelectionPolicy.
func (f SelectionPolicyFunc) Select(in SelectionInput) (Selection, error) {
	return f(in)
}

// Policy names.
const (
	PolicyRandom        = "random"
	PolicyBiggestLoss   = "biggest_loss"
	PolicyGradDiversity = "grad_diversity"
	PolicyUpdateNorm    = "update_norm"
)

// selectionPolicies maps a policy name to its constructor. Empty name means random.
var selectionPolicies = map[string]func() SelectionPolicy{
	"":                  func() SelectionPolicy { return RandomSelection{} },
	PolicyRandom:        func() SelectionPolicy { return RandomSelection{} },
	PolicyBiggestLoss:   func() SelectionPolicy { return BiggestLoss{} },
	PolicyGradDiversity: func() SelectionPolicy { return GradDiversity{} },
	PolicyUpdateNorm:    func() SelectionPolicy { return UpdateNorm{} },
}

// RegisterSelectionPolicy makes a policy available by name. Re-registering a name replaces it.
func RegisterSelectionPolicy(name string, ctor func() SelectionPolicy) {
	selectionPolicies[name] = ctor
}

// IsValidSelectionPolicy returns true if name is a registered policy.
func IsValidSelectionPolicy(name string) bool {
	_, ok := selectionPolicies[name]
	return ok
}

// SelectionPolicyNames returns the registered non-empty policy names, sorted.
func SelectionPolicyNames() []string {
	names := make([]string, 0, len(selectionPolicies))
	for name := range selectionPolicies {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NewSelectionPolicy creates a client selection policy by name.
// Empty string defaults to random.
func NewSelectionPolicy(name string) (SelectionPolicy, error) {
	ctor, ok := selectionPolicies[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %v)", ErrUnrecognizedPolicy, name, SelectionPolicyNames())
	}
	return ctor(), nil
}

func validateCount(m, n int) error {
	if m > n {
		return fmt.Errorf("%w: cannot select %d of %d candidates", ErrInvalidSelection, m, n)
	}
	if m < 1 {
		return fmt.Errorf("%w: selection count must be >= 1, got %d", ErrInvalidSelection, m)
	}
	return nil
}

// RandomSelection picks m results uniformly without replacement.
type RandomSelection struct{}

// Select implements SelectionPolicy for RandomSelection.
func (RandomSelection) Select(in SelectionInput) (Selection, error) {
	if err := validateCount(in.Count, len(in.Results)); err != nil {
		return Selection{}, err
	}
	if in.RNG == nil {
		return Selection{}, fmt.Errorf("random selection requires an RNG")
	}
	return Selection{Indices: in.RNG.Perm(len(in.Results))[:in.Count]}, nil
}

// BiggestLoss picks the m results with the highest reported loss, in descending
// loss order. Ties are broken by first occurrence in Results.
type BiggestLoss struct{}

// Select implements SelectionPolicy for BiggestLoss.
func (BiggestLoss) Select(in SelectionInput) (Selection, error) {
	if err := validateCount(in.Count, len(in.Results)); err != nil {
		return Selection{}, err
	}
	order := make([]int, len(in.Results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return in.Results[order[a]].Loss > in.Results[order[b]].Loss
	})
	return Selection{Indices: order[:in.Count]}, nil
}

// deltas computes trained - global for every result.
func deltas(results []LocalResult, global ParameterSet) ([]ParameterSet, error) {
	out := make([]ParameterSet, len(results))
	for i, r := range results {
		d, err := r.Params.Sub(global)
		if err != nil {
			return nil, fmt.Errorf("client %d delta: %w", r.Client, err)
		}
		out[i] = d
	}
	return out, nil
}
