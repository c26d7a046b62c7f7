package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/fedsim/sim"
)

func testBatch() sim.Batch {
	return sim.Batch{
		X: [][]float64{{1, 0.5, -1}, {-2, 1, 0}, {0.3, -0.7, 2}, {1.5, 1.5, 1.5}},
		Y: []int{0, 1, 2, 1},
	}
}

func newModel(t *testing.T, name string) sim.Model {
	t.Helper()
	f, err := New(name, Options{Features: 3, NumClasses: 3, Hidden: 5, Seed: 4})
	require.NoError(t, err)
	m, err := f()
	require.NoError(t, err)
	return m
}

func TestNew_UnknownArchitecture(t *testing.T) {
	_, err := New("resnet", Options{Features: 3, NumClasses: 3})
	assert.ErrorIs(t, err, sim.ErrUnrecognizedArchitecture)
	assert.Equal(t, []string{NameLogReg, NameMLP}, Names())
}

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(NameLogReg, Options{Features: 0, NumClasses: 3})
	assert.Error(t, err)
	_, err = New(NameMLP, Options{Features: 3, NumClasses: 1})
	assert.Error(t, err)
}

func TestNew_ParameterNamesAndShapes(t *testing.T) {
	tests := []struct {
		name   string
		shapes map[string][]int
	}{
		{NameLogReg, map[string][]int{"linear.weight": {3, 3}, "linear.bias": {3}}},
		{NameMLP, map[string][]int{"fc1.weight": {5, 3}, "fc1.bias": {5}, "fc2.weight": {3, 5}, "fc2.bias": {3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newModel(t, tt.name).State()
			require.Len(t, state, len(tt.shapes))
			for k, shape := range tt.shapes {
				assert.Equal(t, shape, state[k].Shape, k)
			}
		})
	}
}

func TestFactory_ReplicasStartIdentical(t *testing.T) {
	for _, name := range Names() {
		assert.Equal(t, newModel(t, name).State(), newModel(t, name).State(), name)
	}
}

func TestState_IsDeepCopy(t *testing.T) {
	m := newModel(t, NameLogReg)
	snapshot := m.State()
	before := snapshot.Flatten()

	m.Train()
	_, err := m.Step(testBatch(), 0.5)
	require.NoError(t, err)

	assert.Equal(t, before, snapshot.Flatten())
	assert.NotEqual(t, before, m.State().Flatten())
}

func TestLoad_CopiesAndChecksShape(t *testing.T) {
	m := newModel(t, NameMLP)
	p := m.State().Scale(0)
	require.NoError(t, m.Load(p))

	p["fc1.bias"].Data[0] = 7
	assert.Equal(t, 0.0, m.State()["fc1.bias"].Data[0])

	err := m.Load(sim.ParameterSet{"w": sim.NewTensor(1)})
	assert.ErrorIs(t, err, sim.ErrIncompatibleParameterSet)
}

func TestStep_RequiresTrainMode(t *testing.T) {
	m := newModel(t, NameLogReg)
	m.Eval()
	_, err := m.Step(testBatch(), 0.1)
	assert.Error(t, err)
}

func TestStep_LossDecreases(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m := newModel(t, name)
			m.Train()
			first, err := m.Step(testBatch(), 0.2)
			require.NoError(t, err)
			var last float64
			for i := 0; i < 200; i++ {
				last, err = m.Step(testBatch(), 0.2)
				require.NoError(t, err)
			}
			assert.Less(t, last, first)

			m.Eval()
			_, correct, err := m.Forward(testBatch())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, correct, 3)
		})
	}
}

func TestStep_MatchesNumericalGradient(t *testing.T) {
	// one step with lr=1 moves every parameter by minus the mean-loss gradient
	const eps = 1e-6
	batch := testBatch()
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m := newModel(t, name)
			p := m.State()

			meanLoss := func(q sim.ParameterSet) float64 {
				require.NoError(t, m.Load(q))
				l, _, err := m.Forward(batch)
				require.NoError(t, err)
				return l / float64(batch.Len())
			}

			for _, k := range p.Keys() {
				for i := 0; i < p[k].Len(); i += 2 {
					plus, minus := p.Clone(), p.Clone()
					plus[k].Data[i] += eps
					minus[k].Data[i] -= eps
					numeric := (meanLoss(plus) - meanLoss(minus)) / (2 * eps)

					require.NoError(t, m.Load(p))
					m.Train()
					_, err := m.Step(batch, 1)
					require.NoError(t, err)
					analytic := p[k].Data[i] - m.State()[k].Data[i]
					m.Eval()

					assert.InDelta(t, numeric, analytic, 1e-5, "%s[%d]", k, i)
				}
			}
		})
	}
}

func TestForward_RejectsBadBatch(t *testing.T) {
	m := newModel(t, NameLogReg)
	_, _, err := m.Forward(sim.Batch{})
	assert.Error(t, err)
	_, _, err = m.Forward(sim.Batch{X: [][]float64{{1, 2}}, Y: []int{0}})
	assert.Error(t, err)
	_, _, err = m.Forward(sim.Batch{X: [][]float64{{1, 2, 3}}, Y: []int{3}})
	assert.Error(t, err)
}
