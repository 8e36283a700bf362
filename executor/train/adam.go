package train

import "github.com/chewxy/math32"

// Adam keeps first and second moment estimates for a fixed list of
// parameter tensors.
type Adam struct {
	LR    float32
	Beta1 float32
	Beta2 float32
	Eps   float32

	m, v [][]float32
	t    int
}

func NewAdam(lr float32, params [][]float32) *Adam {
	a := &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
	a.m = make([][]float32, len(params))
	a.v = make([][]float32, len(params))
	for i, p := range params {
		a.m[i] = make([]float32, len(p))
		a.v[i] = make([]float32, len(p))
	}
	return a
}

// Step updates params in place from grads. Both must match the shapes given
// to NewAdam.
func (a *Adam) Step(params, grads [][]float32) {
	a.t++
	c1 := 1 - math32.Pow(a.Beta1, float32(a.t))
	c2 := 1 - math32.Pow(a.Beta2, float32(a.t))
	for i, p := range params {
		m, v, g := a.m[i], a.v[i], grads[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			p[j] -= a.LR * (m[j] / c1) / (math32.Sqrt(v[j]/c2) + a.Eps)
		}
	}
}
