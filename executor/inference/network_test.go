package inference

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func testNetwork() *Network {
	return NewNetwork(InputSize, 16, rand.New(rand.NewPCG(1, 2)))
}

func TestPredictRanges(t *testing.T) {
	n := testNetwork()
	for _, x := range [][]float32{
		{0, 0, 0, 0, 1},
		{1, 1, 1, 1, 1},
		{0.6, 0.25, 0.1, 1.0 / 3, 1},
	} {
		v, p, err := n.Predict(x)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
		require.GreaterOrEqual(t, p, float32(0))
		require.LessOrEqual(t, p, float32(1))
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	_, _, err := testNetwork().Predict([]float32{1, 2})
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	n := testNetwork()
	c := n.Clone()
	c.FC1.W.Data[0] += 1
	require.NotEqual(t, n.FC1.W.Data[0], c.FC1.W.Data[0])
}

func TestTanhSigmoid(t *testing.T) {
	require.InDelta(t, 0, tanh(0), 1e-6)
	require.InDelta(t, 0.7615942, tanh(1), 1e-5)
	require.InDelta(t, -1, tanh(-40), 1e-6)
	require.InDelta(t, 0.5, sigmoid(0), 1e-6)
}

// sgdStep applies one plain gradient step and returns the loss before it.
func sgdStep(n *Network, x []float32, tv, tp, lr float32) float32 {
	g := NewGradients(n)
	loss := n.Accumulate(x, tv, tp, g)
	for i, d := range n.Layers() {
		gd := g.Layers()[i]
		for j := range d.W.Data {
			d.W.Data[j] -= lr * gd.W.Data[j]
		}
		for j := range d.B.Data {
			d.B.Data[j] -= lr * gd.B.Data[j]
		}
	}
	return loss
}

func TestAccumulateDescends(t *testing.T) {
	n := testNetwork()
	x := []float32{0.8, 0.4, 0.3, 1, 1}

	first := sgdStep(n, x, 0.5, 0.9, 0.05)
	var last float32
	for range 200 {
		last = sgdStep(n, x, 0.5, 0.9, 0.05)
	}
	require.Less(t, last, first)

	v, p, err := n.Predict(x)
	require.NoError(t, err)
	require.InDelta(t, 0.5, v, 0.1)
	require.InDelta(t, 0.9, p, 0.1)
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	n := testNetwork()
	x := []float32{0.3, 0.5, 0.7, 2.0 / 3, 1}
	g := NewGradients(n)
	n.Accumulate(x, -0.2, 0.3, g)

	lossAt := func() float32 {
		return n.Accumulate(x, -0.2, 0.3, NewGradients(n))
	}
	const h = 1e-2
	for _, idx := range []int{0, 3, 7} {
		orig := n.FC1.W.Data[idx]
		n.FC1.W.Data[idx] = orig + h
		up := lossAt()
		n.FC1.W.Data[idx] = orig - h
		down := lossAt()
		n.FC1.W.Data[idx] = orig
		require.InDelta(t, (up-down)/(2*h), g.FC1.W.Data[idx], 1e-2, "fc1 weight %d", idx)
	}
}

func TestGradientsZeroAndScale(t *testing.T) {
	n := testNetwork()
	g := NewGradients(n)
	n.Accumulate([]float32{1, 0, 0, 1, 1}, 1, 1, g)
	before := g.Value.B.Data[0]
	g.Scale(0.5)
	require.InDelta(t, before/2, g.Value.B.Data[0], 1e-7)
	g.Zero()
	require.Zero(t, g.Value.B.Data[0])
}
