package inference

import (
	"fmt"
	"math/rand/v2"

	"github.com/brensch/settlers/rules"
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

const (
	InputSize  = rules.FeatureLength
	HiddenSize = 128
)

// Dense is a fully connected layer y = W x + b with W stored row-major
// (Out x In).
type Dense struct {
	W blas32.General
	B blas32.Vector
}

func NewDense(in, out int) Dense {
	return Dense{
		W: blas32.General{Rows: out, Cols: in, Stride: in, Data: make([]float32, in*out)},
		B: blas32.Vector{N: out, Inc: 1, Data: make([]float32, out)},
	}
}

func (d Dense) In() int  { return d.W.Cols }
func (d Dense) Out() int { return d.W.Rows }

// forward writes W x + b into y.
func (d Dense) forward(x, y []float32) {
	copy(y, d.B.Data)
	blas32.Gemv(blas.NoTrans, 1, d.W, vec(x), 1, vec(y))
}

func (d Dense) clone() Dense {
	out := NewDense(d.In(), d.Out())
	copy(out.W.Data, d.W.Data)
	copy(out.B.Data, d.B.Data)
	return out
}

// Network is a two hidden layer policy/value net:
// features -> relu(fc1) -> relu(fc2) -> (tanh value, sigmoid policy).
type Network struct {
	FC1    Dense
	FC2    Dense
	Value  Dense
	Policy Dense
}

// NewNetwork returns a network with uniform fan-in initialisation.
func NewNetwork(inputs, hidden int, rng *rand.Rand) *Network {
	n := &Network{
		FC1:    NewDense(inputs, hidden),
		FC2:    NewDense(hidden, hidden),
		Value:  NewDense(hidden, 1),
		Policy: NewDense(hidden, 1),
	}
	for _, d := range n.Layers() {
		bound := 1 / math32.Sqrt(float32(d.In()))
		for i := range d.W.Data {
			d.W.Data[i] = (rng.Float32()*2 - 1) * bound
		}
		for i := range d.B.Data {
			d.B.Data[i] = (rng.Float32()*2 - 1) * bound
		}
	}
	return n
}

// Layers returns the layers in a fixed order used for persistence and
// optimiser state.
func (n *Network) Layers() []Dense {
	return []Dense{n.FC1, n.FC2, n.Value, n.Policy}
}

// LayerNames matches Layers.
var LayerNames = []string{"fc1", "fc2", "fc_value", "fc_policy"}

func (n *Network) Clone() *Network {
	return &Network{
		FC1:    n.FC1.clone(),
		FC2:    n.FC2.clone(),
		Value:  n.Value.clone(),
		Policy: n.Policy.clone(),
	}
}

func (n *Network) validate() error {
	if n.FC2.In() != n.FC1.Out() || n.Value.In() != n.FC2.Out() || n.Policy.In() != n.FC2.Out() {
		return fmt.Errorf("layer shapes do not chain: fc1 %dx%d fc2 %dx%d value %dx%d policy %dx%d",
			n.FC1.Out(), n.FC1.In(), n.FC2.Out(), n.FC2.In(), n.Value.Out(), n.Value.In(), n.Policy.Out(), n.Policy.In())
	}
	if n.Value.Out() != 1 || n.Policy.Out() != 1 {
		return fmt.Errorf("heads must have one output, got value=%d policy=%d", n.Value.Out(), n.Policy.Out())
	}
	return nil
}

// activations keeps the intermediate values needed for the backward pass.
type activations struct {
	x      []float32
	h1     []float32
	h2     []float32
	value  float32
	policy float32
}

func (n *Network) forward(x []float32) activations {
	a := activations{
		x:  x,
		h1: make([]float32, n.FC1.Out()),
		h2: make([]float32, n.FC2.Out()),
	}
	n.FC1.forward(x, a.h1)
	relu(a.h1)
	n.FC2.forward(a.h1, a.h2)
	relu(a.h2)

	var v, p [1]float32
	n.Value.forward(a.h2, v[:])
	n.Policy.forward(a.h2, p[:])
	a.value = tanh(v[0])
	a.policy = sigmoid(p[0])
	return a
}

// Predict returns (value in [-1,1], policy in [0,1]) for one feature vector.
func (n *Network) Predict(features []float32) (float32, float32, error) {
	if len(features) != n.FC1.In() {
		return 0, 0, fmt.Errorf("expected %d features, got %d", n.FC1.In(), len(features))
	}
	a := n.forward(features)
	return a.value, a.policy, nil
}

func relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func tanh(x float32) float32 {
	return 1 - 2/(math32.Exp(2*x)+1)
}

func vec(x []float32) blas32.Vector {
	return blas32.Vector{N: len(x), Inc: 1, Data: x}
}
