package forecast

import "math"

// param pairs a flat parameter buffer with its gradient buffer. Buffers alias
// the gonum backing storage, so updates mutate the layer weights in place.
type param struct {
	data []float64
	grad []float64
}

// adamOptimizer implements Adam with bias correction over flat parameter
// buffers.
type adamOptimizer struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int
	m     [][]float64
	v     [][]float64
}

func newAdam(lr float64) *adamOptimizer {
	return &adamOptimizer{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
}

// update applies one Adam step. The params slice must keep the same order and
// shapes across calls; moment buffers are allocated on first use.
func (o *adamOptimizer) update(params []param) {
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.data))
			o.v[i] = make([]float64, len(p.data))
		}
	}
	o.step++
	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))

	for i, p := range params {
		m, v := o.m[i], o.v[i]
		for j, g := range p.grad {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			p.data[j] -= o.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + o.eps)
		}
	}
}

// clipGradients rescales all gradients so their global L2 norm does not
// exceed maxNorm. Keeps early LSTM training from exploding.
func clipGradients(params []param, maxNorm float64) {
	var sum float64
	for _, p := range params {
		for _, g := range p.grad {
			sum += g * g
		}
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for _, p := range params {
		for j := range p.grad {
			p.grad[j] *= scale
		}
	}
}
