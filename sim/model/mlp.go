package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/fedsim/sim"
)

// mlp is a one-hidden-layer ReLU network: logits = W2 relu(W1 x + b1) + b2.
type mlp struct {
	features, hidden, classes int
}

func (m mlp) initParams(rng *rand.Rand) sim.ParameterSet {
	return sim.ParameterSet{
		"fc1.weight": gaussianInit(sim.NewTensor(m.hidden, m.features), math.Sqrt(2/float64(m.features)), rng),
		"fc1.bias":   sim.NewTensor(m.hidden),
		"fc2.weight": gaussianInit(sim.NewTensor(m.classes, m.hidden), 1/math.Sqrt(float64(m.hidden)), rng),
		"fc2.bias":   sim.NewTensor(m.classes),
	}
}

// hiddenLayer returns the post-ReLU activations.
func (m mlp) hiddenLayer(p sim.ParameterSet, x []float64) []float64 {
	w1, b1 := p["fc1.weight"], p["fc1.bias"]
	h := make([]float64, m.hidden)
	for j := range h {
		h[j] = max(floats.Dot(row(w1, j), x)+b1.Data[j], 0)
	}
	return h
}

func (m mlp) output(p sim.ParameterSet, h []float64) []float64 {
	w2, b2 := p["fc2.weight"], p["fc2.bias"]
	z := make([]float64, m.classes)
	for c := range z {
		z[c] = floats.Dot(row(w2, c), h) + b2.Data[c]
	}
	return z
}

func (m mlp) logits(p sim.ParameterSet, x []float64) []float64 {
	return m.output(p, m.hiddenLayer(p, x))
}

func (m mlp) accumulate(p sim.ParameterSet, x []float64, y int, grad sim.ParameterSet) float64 {
	h := m.hiddenLayer(p, x)
	z := m.output(p, h)
	loss := crossEntropy(z, y)
	d := softmax(z)
	d[y] -= 1

	w2 := p["fc2.weight"]
	gw2, gb2 := grad["fc2.weight"], grad["fc2.bias"]
	dh := make([]float64, m.hidden)
	for c, dc := range d {
		floats.AddScaled(row(gw2, c), dc, h)
		gb2.Data[c] += dc
		floats.AddScaled(dh, dc, row(w2, c))
	}

	gw1, gb1 := grad["fc1.weight"], grad["fc1.bias"]
	for j, dj := range dh {
		if h[j] <= 0 {
			continue
		}
		floats.AddScaled(row(gw1, j), dj, x)
		gb1.Data[j] += dj
	}
	return loss
}
