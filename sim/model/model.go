// Package model provides small pure-Go classifiers implementing sim.Model.
//
// Architectures are registered by name; New returns a sim.ModelFactory whose
// replicas all start from the same seeded initialization.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/fedsim/sim"
)

// Architecture names recognized by New.
const (
	NameLogReg = "logreg"
	NameMLP    = "mlp"
)

// Options parameterizes model construction.
type Options struct {
	Features   int   // input dimension
	NumClasses int   // output dimension
	Hidden     int   // hidden units (mlp only, default 32)
	Seed       int64 // initialization seed
}

// architecture is the per-network forward/backward definition.
type architecture interface {
	initParams(rng *rand.Rand) sim.ParameterSet
	logits(p sim.ParameterSet, x []float64) []float64
	// accumulate adds d(loss)/d(params) for one sample into grad and returns the sample loss.
	accumulate(p sim.ParameterSet, x []float64, y int, grad sim.ParameterSet) float64
}

var architectures = map[string]func(Options) architecture{
	NameLogReg: func(o Options) architecture { return logReg{features: o.Features, classes: o.NumClasses} },
	NameMLP: func(o Options) architecture {
		h := o.Hidden
		if h <= 0 {
			h = 32
		}
		return mlp{features: o.Features, hidden: h, classes: o.NumClasses}
	},
}

// Names returns the recognized architecture names, sorted.
func Names() []string {
	names := make([]string, 0, len(architectures))
	for n := range architectures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns a factory for the named architecture.
func New(name string, opts Options) (sim.ModelFactory, error) {
	ctor, ok := architectures[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %v)", sim.ErrUnrecognizedArchitecture, name, Names())
	}
	if opts.Features < 1 || opts.NumClasses < 2 {
		return nil, fmt.Errorf("model %q needs features >= 1 and classes >= 2, got %d/%d", name, opts.Features, opts.NumClasses)
	}
	arch := ctor(opts)
	return func() (sim.Model, error) {
		rng := rand.New(rand.NewSource(opts.Seed))
		return &network{arch: arch, features: opts.Features, classes: opts.NumClasses, params: arch.initParams(rng)}, nil
	}, nil
}

// network implements sim.Model over an architecture.
type network struct {
	arch     architecture
	features int
	classes  int
	params   sim.ParameterSet
	training bool
}

func (n *network) Load(params sim.ParameterSet) error {
	if err := n.params.Compatible(params); err != nil {
		return err
	}
	n.params = params.Clone()
	return nil
}

func (n *network) State() sim.ParameterSet { return n.params.Clone() }

func (n *network) Train() { n.training = true }

func (n *network) Eval() { n.training = false }

func (n *network) Step(batch sim.Batch, lr float64) (float64, error) {
	if !n.training {
		return 0, fmt.Errorf("step called in eval mode")
	}
	if err := n.check(batch); err != nil {
		return 0, err
	}

	grad := zerosLike(n.params)
	lossSum := 0.0
	for i, x := range batch.X {
		lossSum += n.arch.accumulate(n.params, x, batch.Y[i], grad)
	}
	scale := -lr / float64(batch.Len())
	for k, g := range grad {
		floats.AddScaled(n.params[k].Data, scale, g.Data)
	}
	return lossSum / float64(batch.Len()), nil
}

func (n *network) Forward(batch sim.Batch) (float64, int, error) {
	if err := n.check(batch); err != nil {
		return 0, 0, err
	}
	lossSum, correct := 0.0, 0
	for i, x := range batch.X {
		z := n.arch.logits(n.params, x)
		lossSum += crossEntropy(z, batch.Y[i])
		if floats.MaxIdx(z) == batch.Y[i] {
			correct++
		}
	}
	return lossSum, correct, nil
}

func (n *network) check(batch sim.Batch) error {
	if batch.Len() == 0 {
		return fmt.Errorf("empty batch")
	}
	for i, x := range batch.X {
		if len(x) != n.features {
			return fmt.Errorf("sample %d has %d features, model expects %d", i, len(x), n.features)
		}
		if y := batch.Y[i]; y < 0 || y >= n.classes {
			return fmt.Errorf("sample %d has label %d outside [0,%d)", i, y, n.classes)
		}
	}
	return nil
}

func zerosLike(p sim.ParameterSet) sim.ParameterSet {
	out := make(sim.ParameterSet, len(p))
	for k, t := range p {
		out[k] = sim.NewTensor(t.Shape...)
	}
	return out
}

// softmax returns exp(z - logsumexp(z)).
func softmax(z []float64) []float64 {
	lse := floats.LogSumExp(z)
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = math.Exp(v - lse)
	}
	return out
}

func crossEntropy(z []float64, y int) float64 {
	return floats.LogSumExp(z) - z[y]
}

// gaussianInit fills t with N(0, std^2) samples.
func gaussianInit(t sim.Tensor, std float64, rng *rand.Rand) sim.Tensor {
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * std
	}
	return t
}

// row returns the r-th row of a [rows, cols] tensor as a sub-slice.
func row(t sim.Tensor, r int) []float64 {
	cols := t.Shape[1]
	return t.Data[r*cols : (r+1)*cols]
}
