package forecast

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Gate rows inside the packed 4H weight matrices, in order: input, forget,
// candidate, output.

// lstmCell is one recurrent layer. Weights are packed so a single MulVec per
// timestep produces all four gate pre-activations.
type lstmCell struct {
	inSize     int
	hiddenSize int

	wx *mat.Dense    // 4H x in
	wh *mat.Dense    // 4H x H
	b  *mat.VecDense // 4H

	dwx *mat.Dense
	dwh *mat.Dense
	db  *mat.VecDense
}

// lstmStep caches everything the backward pass needs for one timestep.
type lstmStep struct {
	x, hPrev, cPrev  *mat.VecDense
	gi, gf, gg, gOut *mat.VecDense
	c, tanhC, h      *mat.VecDense
}

func newLSTMCell(inSize, hiddenSize int, rng *rand.Rand) *lstmCell {
	scale := math.Sqrt(2.0 / float64(inSize+hiddenSize))
	randSlice := func(n int) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = rng.NormFloat64() * scale
		}
		return s
	}
	c := &lstmCell{
		inSize:     inSize,
		hiddenSize: hiddenSize,
		wx:         mat.NewDense(4*hiddenSize, inSize, randSlice(4*hiddenSize*inSize)),
		wh:         mat.NewDense(4*hiddenSize, hiddenSize, randSlice(4*hiddenSize*hiddenSize)),
		b:          mat.NewVecDense(4*hiddenSize, nil),
		dwx:        mat.NewDense(4*hiddenSize, inSize, nil),
		dwh:        mat.NewDense(4*hiddenSize, hiddenSize, nil),
		db:         mat.NewVecDense(4*hiddenSize, nil),
	}
	// Forget-gate bias starts at 1 so early training does not wipe cell state.
	for i := hiddenSize; i < 2*hiddenSize; i++ {
		c.b.SetVec(i, 1.0)
	}
	return c
}

// forward advances one timestep and returns the cached step.
func (l *lstmCell) forward(x, hPrev, cPrev *mat.VecDense) *lstmStep {
	h := l.hiddenSize
	z := mat.NewVecDense(4*h, nil)
	z.MulVec(l.wx, x)
	tmp := mat.NewVecDense(4*h, nil)
	tmp.MulVec(l.wh, hPrev)
	z.AddVec(z, tmp)
	z.AddVec(z, l.b)

	zd := z.RawVector().Data
	st := &lstmStep{
		x: x, hPrev: hPrev, cPrev: cPrev,
		gi: mat.NewVecDense(h, nil), gf: mat.NewVecDense(h, nil),
		gg: mat.NewVecDense(h, nil), gOut: mat.NewVecDense(h, nil),
		c: mat.NewVecDense(h, nil), tanhC: mat.NewVecDense(h, nil), h: mat.NewVecDense(h, nil),
	}
	gi, gf, gg, gout := st.gi.RawVector().Data, st.gf.RawVector().Data, st.gg.RawVector().Data, st.gOut.RawVector().Data
	cd, tc, hd := st.c.RawVector().Data, st.tanhC.RawVector().Data, st.h.RawVector().Data
	cp := cPrev.RawVector().Data
	for i := 0; i < h; i++ {
		gi[i] = sigmoid(zd[i])
		gf[i] = sigmoid(zd[h+i])
		gg[i] = math.Tanh(zd[2*h+i])
		gout[i] = sigmoid(zd[3*h+i])
		cd[i] = gf[i]*cp[i] + gi[i]*gg[i]
		tc[i] = math.Tanh(cd[i])
		hd[i] = gout[i] * tc[i]
	}
	return st
}

// backward runs BPTT over a cached sequence. dhExt[t] is the gradient flowing
// into h_t from above (nil means zero); the returned slice is the gradient
// w.r.t. each timestep's input, for propagation into the layer below.
// Weight gradients accumulate into dwx/dwh/db.
func (l *lstmCell) backward(steps []*lstmStep, dhExt []*mat.VecDense) []*mat.VecDense {
	h := l.hiddenSize
	dx := make([]*mat.VecDense, len(steps))
	dhNext := make([]float64, h)
	dcNext := make([]float64, h)
	dz := mat.NewVecDense(4*h, nil)
	dzd := dz.RawVector().Data

	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		gi, gf, gg, gout := st.gi.RawVector().Data, st.gf.RawVector().Data, st.gg.RawVector().Data, st.gOut.RawVector().Data
		tc := st.tanhC.RawVector().Data
		cp := st.cPrev.RawVector().Data

		for i := 0; i < h; i++ {
			dh := dhNext[i]
			if dhExt != nil && dhExt[t] != nil {
				dh += dhExt[t].AtVec(i)
			}
			dc := dcNext[i] + dh*gout[i]*(1-tc[i]*tc[i])
			do := dh * tc[i]
			di := dc * gg[i]
			dg := dc * gi[i]
			df := dc * cp[i]
			dcNext[i] = dc * gf[i]

			dzd[i] = di * gi[i] * (1 - gi[i])
			dzd[h+i] = df * gf[i] * (1 - gf[i])
			dzd[2*h+i] = dg * (1 - gg[i]*gg[i])
			dzd[3*h+i] = do * gout[i] * (1 - gout[i])
		}

		l.dwx.RankOne(l.dwx, 1, dz, st.x)
		l.dwh.RankOne(l.dwh, 1, dz, st.hPrev)
		l.db.AddVec(l.db, dz)

		dxt := mat.NewVecDense(l.inSize, nil)
		dxt.MulVec(l.wx.T(), dz)
		dx[t] = dxt

		dhp := mat.NewVecDense(h, nil)
		dhp.MulVec(l.wh.T(), dz)
		copy(dhNext, dhp.RawVector().Data)
	}
	return dx
}

func (l *lstmCell) zeroGrads() {
	l.dwx.Zero()
	l.dwh.Zero()
	l.db.Zero()
}

func (l *lstmCell) params() []param {
	return []param{
		{data: l.wx.RawMatrix().Data, grad: l.dwx.RawMatrix().Data},
		{data: l.wh.RawMatrix().Data, grad: l.dwh.RawMatrix().Data},
		{data: l.b.RawVector().Data, grad: l.db.RawVector().Data},
	}
}

// denseLayer is the fully connected projection from the final hidden state to
// the output.
type denseLayer struct {
	inSize  int
	outSize int
	w       *mat.Dense
	b       *mat.VecDense
	dw      *mat.Dense
	db      *mat.VecDense
}

func newDenseLayer(inSize, outSize int, rng *rand.Rand) *denseLayer {
	scale := math.Sqrt(2.0 / float64(inSize+outSize))
	wd := make([]float64, outSize*inSize)
	for i := range wd {
		wd[i] = rng.NormFloat64() * scale
	}
	return &denseLayer{
		inSize:  inSize,
		outSize: outSize,
		w:       mat.NewDense(outSize, inSize, wd),
		b:       mat.NewVecDense(outSize, nil),
		dw:      mat.NewDense(outSize, inSize, nil),
		db:      mat.NewVecDense(outSize, nil),
	}
}

func (d *denseLayer) forward(in *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(d.outSize, nil)
	out.MulVec(d.w, in)
	out.AddVec(out, d.b)
	return out
}

// backward accumulates weight gradients for the given input/output-gradient
// pair and returns the gradient w.r.t. the input.
func (d *denseLayer) backward(in, dy *mat.VecDense) *mat.VecDense {
	d.dw.RankOne(d.dw, 1, dy, in)
	d.db.AddVec(d.db, dy)
	din := mat.NewVecDense(d.inSize, nil)
	din.MulVec(d.w.T(), dy)
	return din
}

func (d *denseLayer) zeroGrads() {
	d.dw.Zero()
	d.db.Zero()
}

func (d *denseLayer) params() []param {
	return []param{
		{data: d.w.RawMatrix().Data, grad: d.dw.RawMatrix().Data},
		{data: d.b.RawVector().Data, grad: d.db.RawVector().Data},
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
