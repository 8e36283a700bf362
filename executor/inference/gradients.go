package inference

import (
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Gradients has the same shape as a Network and accumulates dLoss/dParam.
type Gradients struct {
	*Network
}

func NewGradients(n *Network) Gradients {
	return Gradients{Network: &Network{
		FC1:    NewDense(n.FC1.In(), n.FC1.Out()),
		FC2:    NewDense(n.FC2.In(), n.FC2.Out()),
		Value:  NewDense(n.Value.In(), n.Value.Out()),
		Policy: NewDense(n.Policy.In(), n.Policy.Out()),
	}}
}

func (g Gradients) Zero() {
	for _, d := range g.Layers() {
		clear(d.W.Data)
		clear(d.B.Data)
	}
}

// Scale multiplies every gradient by s.
func (g Gradients) Scale(s float32) {
	for _, d := range g.Layers() {
		blas32.Scal(s, vec(d.W.Data))
		blas32.Scal(s, vec(d.B.Data))
	}
}

const logEpsilon = 1e-7

// Accumulate runs one forward/backward pass for a single sample and adds the
// parameter gradients into g. The loss is squared error on the value head
// plus binary cross-entropy on the policy head; the returned value is that
// sample's loss.
func (n *Network) Accumulate(x []float32, targetValue, targetPolicy float32, g Gradients) float32 {
	a := n.forward(x)

	dv := a.value - targetValue
	pc := min(max(a.policy, logEpsilon), 1-logEpsilon)
	loss := dv*dv - (targetPolicy*math32.Log(pc) + (1-targetPolicy)*math32.Log(1-pc))

	// d/dz of tanh squared error and sigmoid cross-entropy.
	dzv := 2 * dv * (1 - a.value*a.value)
	dzp := a.policy - targetPolicy

	g.Value.B.Data[0] += dzv
	g.Policy.B.Data[0] += dzp
	blas32.Axpy(dzv, vec(a.h2), vec(g.Value.W.Data))
	blas32.Axpy(dzp, vec(a.h2), vec(g.Policy.W.Data))

	dh2 := make([]float32, len(a.h2))
	blas32.Axpy(dzv, vec(n.Value.W.Data), vec(dh2))
	blas32.Axpy(dzp, vec(n.Policy.W.Data), vec(dh2))
	reluGrad(dh2, a.h2)
	n.FC2.backward(dh2, a.h1, g.FC2)

	dh1 := make([]float32, len(a.h1))
	blas32.Gemv(blas.Trans, 1, n.FC2.W, vec(dh2), 0, vec(dh1))
	reluGrad(dh1, a.h1)
	n.FC1.backward(dh1, a.x, g.FC1)

	return loss
}

// backward adds dy x^T to the weight gradient and dy to the bias gradient.
func (d Dense) backward(dy, x []float32, g Dense) {
	blas32.Ger(1, vec(dy), vec(x), g.W)
	blas32.Axpy(1, vec(dy), g.B)
}

func reluGrad(grad, activated []float32) {
	for i, v := range activated {
		if v <= 0 {
			grad[i] = 0
		}
	}
}
