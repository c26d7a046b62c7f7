package sim

import (
	"errors"
	"math/rand"
	"sync/atomic"
)

// vecDataset is an in-memory Dataset for tests.
type vecDataset []Sample

func (d vecDataset) Len() int            { return len(d) }
func (d vecDataset) Sample(i int) Sample { return d[i] }

// constDataset returns n samples whose features are all f and whose labels alternate 0/1.
func constDataset(n, dim int, f float64) vecDataset {
	ds := make(vecDataset, n)
	for i := range ds {
		x := make([]float64, dim)
		for j := range x {
			x[j] = f
		}
		ds[i] = Sample{Features: x, Label: i % 2}
	}
	return ds
}

// rampDataset returns n one-dimensional samples with feature i and label 1.
func rampDataset(n int) vecDataset {
	ds := make(vecDataset, n)
	for i := range ds {
		ds[i] = Sample{Features: []float64{float64(i)}, Label: 1}
	}
	return ds
}

// meanModel learns the mean feature vector: loss is 0.5*||x - w||^2 and a
// prediction is correct when the label is 1.
type meanModel struct {
	w        []float64
	training bool
}

func meanFactory(dim int) ModelFactory {
	return func() (Model, error) {
		return &meanModel{w: make([]float64, dim)}, nil
	}
}

func (m *meanModel) Load(p ParameterSet) error {
	t, ok := p["w"]
	if !ok || len(t.Data) != len(m.w) {
		return ErrIncompatibleParameterSet
	}
	copy(m.w, t.Data)
	return nil
}

func (m *meanModel) State() ParameterSet {
	return ParameterSet{"w": {Shape: []int{len(m.w)}, Data: append([]float64(nil), m.w...)}}
}

func (m *meanModel) Train() { m.training = true }
func (m *meanModel) Eval()  { m.training = false }

func (m *meanModel) Step(b Batch, lr float64) (float64, error) {
	if !m.training {
		return 0, errors.New("step in eval mode")
	}
	loss, _, _ := m.Forward(b)
	grad := make([]float64, len(m.w))
	for _, x := range b.X {
		for j := range grad {
			grad[j] += (m.w[j] - x[j]) / float64(b.Len())
		}
	}
	for j := range m.w {
		m.w[j] -= lr * grad[j]
	}
	return loss / float64(b.Len()), nil
}

func (m *meanModel) Forward(b Batch) (float64, int, error) {
	lossSum, correct := 0.0, 0
	for i, x := range b.X {
		for j := range m.w {
			d := x[j] - m.w[j]
			lossSum += 0.5 * d * d
		}
		if b.Y[i] == 1 {
			correct++
		}
	}
	return lossSum, correct, nil
}

// vec builds a single-tensor parameter set {"w": data}.
func vec(data ...float64) ParameterSet {
	return ParameterSet{"w": {Shape: []int{len(data)}, Data: append([]float64(nil), data...)}}
}

// offsetTrainer adds client+1 to every parameter and reports a loss drawn from rng,
// so the result depends on both the client and its per-round stream.
type offsetTrainer struct {
	calls atomic.Int32
	fail  map[ClientID]error
}

func (t *offsetTrainer) Train(global ParameterSet, client ClientID, indices []int, opts TrainOptions, rng *rand.Rand) (LocalResult, error) {
	t.calls.Add(1)
	if err := t.fail[client]; err != nil {
		return LocalResult{}, err
	}
	if len(indices) == 0 {
		return LocalResult{}, ErrInsufficientData
	}
	p := global.Clone()
	for _, tensor := range p {
		for i := range tensor.Data {
			tensor.Data[i] += float64(client + 1)
		}
	}
	return LocalResult{
		Client:      client,
		Params:      p,
		Loss:        rng.Float64(),
		SampleCount: opts.LocalEpochs * len(indices),
	}, nil
}

// uniformPartitions gives every one of n clients size consecutive sample indices.
func uniformPartitions(n, size int) PartitionMap {
	pm := make(PartitionMap, n)
	for c := 0; c < n; c++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = c*size + i
		}
		pm[ClientID(c)] = idx
	}
	return pm
}

// results builds LocalResults with the given losses and equal sample counts.
func results(losses ...float64) []LocalResult {
	out := make([]LocalResult, len(losses))
	for i, l := range losses {
		out[i] = LocalResult{Client: ClientID(i), Params: vec(0), Loss: l, SampleCount: 10}
	}
	return out
}
