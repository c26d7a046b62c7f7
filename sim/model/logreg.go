package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/fedsim/sim"
)

// logReg is multinomial logistic regression: logits = W x + b.
type logReg struct {
	features, classes int
}

func (m logReg) initParams(rng *rand.Rand) sim.ParameterSet {
	return sim.ParameterSet{
		"linear.weight": gaussianInit(sim.NewTensor(m.classes, m.features), 1/math.Sqrt(float64(m.features)), rng),
		"linear.bias":   sim.NewTensor(m.classes),
	}
}

func (m logReg) logits(p sim.ParameterSet, x []float64) []float64 {
	w, b := p["linear.weight"], p["linear.bias"]
	z := make([]float64, m.classes)
	for c := range z {
		z[c] = floats.Dot(row(w, c), x) + b.Data[c]
	}
	return z
}

func (m logReg) accumulate(p sim.ParameterSet, x []float64, y int, grad sim.ParameterSet) float64 {
	z := m.logits(p, x)
	loss := crossEntropy(z, y)
	d := softmax(z)
	d[y] -= 1

	gw, gb := grad["linear.weight"], grad["linear.bias"]
	for c, dc := range d {
		floats.AddScaled(row(gw, c), dc, x)
		gb.Data[c] += dc
	}
	return loss
}
