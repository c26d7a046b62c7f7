package sim

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major array of parameters.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, n)}
}

// Clone returns a deep copy of the tensor.
func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// ParameterSet maps parameter names to tensors. It is a full model snapshot.
type ParameterSet map[string]Tensor

// Keys returns the parameter names in sorted order. Every iteration that must be
// reproducible (flattening, hashing, export) goes through Keys.
func (p ParameterSet) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy that shares no buffers with p.
func (p ParameterSet) Clone() ParameterSet {
	if p == nil {
		return nil
	}
	out := make(ParameterSet, len(p))
	for k, t := range p {
		out[k] = t.Clone()
	}
	return out
}

// NumParams returns the total element count over all tensors.
func (p ParameterSet) NumParams() int {
	n := 0
	for _, t := range p {
		n += t.Len()
	}
	return n
}

// Compatible reports whether other has exactly the same keys and per-key shapes.
// The returned error wraps ErrIncompatibleParameterSet and names the first offending key.
func (p ParameterSet) Compatible(other ParameterSet) error {
	if len(p) != len(other) {
		return fmt.Errorf("%w: %d keys vs %d keys", ErrIncompatibleParameterSet, len(p), len(other))
	}
	for _, k := range p.Keys() {
		o, ok := other[k]
		if !ok {
			return fmt.Errorf("%w: missing key %q", ErrIncompatibleParameterSet, k)
		}
		t := p[k]
		if !slices.Equal(t.Shape, o.Shape) || len(t.Data) != len(o.Data) {
			return fmt.Errorf("%w: key %q has shape %v vs %v", ErrIncompatibleParameterSet, k, t.Shape, o.Shape)
		}
	}
	return nil
}

// Sub returns p - other per key.
func (p ParameterSet) Sub(other ParameterSet) (ParameterSet, error) {
	if err := p.Compatible(other); err != nil {
		return nil, err
	}
	out := make(ParameterSet, len(p))
	for k, t := range p {
		d := Tensor{Shape: slices.Clone(t.Shape), Data: make([]float64, len(t.Data))}
		floats.SubTo(d.Data, t.Data, other[k].Data)
		out[k] = d
	}
	return out, nil
}

// Add returns p + other per key.
func (p ParameterSet) Add(other ParameterSet) (ParameterSet, error) {
	if err := p.Compatible(other); err != nil {
		return nil, err
	}
	out := make(ParameterSet, len(p))
	for k, t := range p {
		s := Tensor{Shape: slices.Clone(t.Shape), Data: make([]float64, len(t.Data))}
		floats.AddTo(s.Data, t.Data, other[k].Data)
		out[k] = s
	}
	return out, nil
}

// Scale returns a copy of p with every element multiplied by f.
func (p ParameterSet) Scale(f float64) ParameterSet {
	out := p.Clone()
	for _, t := range out {
		floats.Scale(f, t.Data)
	}
	return out
}

// Flatten concatenates all tensors in sorted key order into one vector.
func (p ParameterSet) Flatten() []float64 {
	out := make([]float64, 0, p.NumParams())
	for _, k := range p.Keys() {
		out = append(out, p[k].Data...)
	}
	return out
}
