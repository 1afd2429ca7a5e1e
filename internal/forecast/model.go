package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Default hyperparameters for the canonical model family: two stacked LSTM
// layers, dropout before the dense head, single-step output.
const (
	DefaultHiddenUnits     = 32
	DefaultLayers          = 2
	DefaultDropout         = 0.2
	DefaultLearningRate    = 1e-3
	DefaultValidationSplit = 0.2
	DefaultMinSamples      = 10
	gradClipNorm           = 5.0
)

// ModelConfig carries the full hyperparameter set for one training run.
// SequenceLength, Epochs, BatchSize and DaysToPredict also identify the run
// (see Fingerprint); the architecture parameters are deployment constants.
type ModelConfig struct {
	SequenceLength     int     `json:"sequence_length"`
	Epochs             int     `json:"epochs"`
	BatchSize          int     `json:"batch_size"`
	DaysToPredict      int     `json:"days_to_predict"`
	HiddenUnits        int     `json:"hidden_units"`
	Layers             int     `json:"layers"`
	Dropout            float64 `json:"dropout"`
	LearningRate       float64 `json:"learning_rate"`
	ValidationSplit    float64 `json:"validation_split"`
	MinTrainingSamples int     `json:"min_training_samples"`
	Seed               int64   `json:"seed"`
}

// WithDefaults fills zero-valued architecture fields.
func (c ModelConfig) WithDefaults() ModelConfig {
	if c.HiddenUnits <= 0 {
		c.HiddenUnits = DefaultHiddenUnits
	}
	if c.Layers <= 0 {
		c.Layers = DefaultLayers
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		c.Dropout = DefaultDropout
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.ValidationSplit <= 0 || c.ValidationSplit >= 1 {
		c.ValidationSplit = DefaultValidationSplit
	}
	if c.MinTrainingSamples <= 0 {
		c.MinTrainingSamples = DefaultMinSamples
	}
	return c
}

// Validate rejects configs the model cannot be built from.
func (c ModelConfig) Validate() error {
	if c.SequenceLength < 2 {
		return &InvalidInputError{Reason: "sequence length must be at least 2"}
	}
	if c.Epochs < 1 {
		return &InvalidInputError{Reason: "epochs must be positive"}
	}
	if c.BatchSize < 1 {
		return &InvalidInputError{Reason: "batch size must be positive"}
	}
	if c.DaysToPredict < 1 {
		return &InvalidInputError{Reason: "days to predict must be positive"}
	}
	return nil
}

// Model is the stacked-LSTM sequence model. All computation happens in
// normalized space; denormalization is the Predictor's job. A Model must be
// Released when no longer needed.
type Model struct {
	cfg      ModelConfig
	cells    []*lstmCell
	head     *denseLayer
	opt      *adamOptimizer
	rng      *rand.Rand
	released bool
}

// NewModel builds an untrained model from the config and registers a live
// handle.
func NewModel(cfg ModelConfig) *Model {
	cfg = cfg.WithDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	cells := make([]*lstmCell, cfg.Layers)
	for i := range cells {
		in := 1
		if i > 0 {
			in = cfg.HiddenUnits
		}
		cells[i] = newLSTMCell(in, cfg.HiddenUnits, rng)
	}
	m := &Model{
		cfg:   cfg,
		cells: cells,
		head:  newDenseLayer(cfg.HiddenUnits, 1, rng),
		opt:   newAdam(cfg.LearningRate),
		rng:   rng,
	}
	retainHandle()
	return m
}

// Config returns the model's hyperparameters.
func (m *Model) Config() ModelConfig { return m.cfg }

// Release frees the model's handle. Idempotent.
func (m *Model) Release() {
	if m.released {
		return
	}
	m.released = true
	m.cells = nil
	m.head = nil
	m.opt = nil
	releaseHandle()
}

// sampleCache holds one sample's forward state for backpropagation.
type sampleCache struct {
	steps    [][]*lstmStep // per layer, per timestep
	hFinal   *mat.VecDense // after dropout
	dropMask []float64     // nil outside training
	out      float64
}

// forwardSample runs one window through the stack. In training mode the
// per-layer caches are kept and inverted dropout is applied to the final
// hidden state.
func (m *Model) forwardSample(window []float64, train bool) (*sampleCache, error) {
	if m.released {
		return nil, &ModelRuntimeError{Op: "forward", Err: fmt.Errorf("model already released")}
	}
	if len(window) != m.cfg.SequenceLength {
		return nil, &ModelRuntimeError{Op: "forward",
			Err: fmt.Errorf("window length %d does not match sequence length %d", len(window), m.cfg.SequenceLength)}
	}

	T := len(window)
	cache := &sampleCache{steps: make([][]*lstmStep, len(m.cells))}

	// Layer 0 consumes the scalar series; upper layers consume the hidden
	// sequence below them.
	inputs := make([]*mat.VecDense, T)
	for t, v := range window {
		inputs[t] = mat.NewVecDense(1, []float64{v})
	}
	for li, cell := range m.cells {
		steps := make([]*lstmStep, T)
		h := mat.NewVecDense(cell.hiddenSize, nil)
		c := mat.NewVecDense(cell.hiddenSize, nil)
		for t := 0; t < T; t++ {
			st := cell.forward(inputs[t], h, c)
			steps[t] = st
			h, c = st.h, st.c
		}
		cache.steps[li] = steps
		if li < len(m.cells)-1 {
			next := make([]*mat.VecDense, T)
			for t := 0; t < T; t++ {
				next[t] = steps[t].h
			}
			inputs = next
		}
	}

	last := cache.steps[len(m.cells)-1][T-1].h
	hFinal := mat.NewVecDense(last.Len(), nil)
	hFinal.CopyVec(last)
	if train && m.cfg.Dropout > 0 {
		keep := 1 - m.cfg.Dropout
		mask := make([]float64, hFinal.Len())
		hd := hFinal.RawVector().Data
		for i := range mask {
			if m.rng.Float64() < keep {
				mask[i] = 1 / keep
			}
			hd[i] *= mask[i]
		}
		cache.dropMask = mask
	}
	cache.hFinal = hFinal

	out := m.head.forward(hFinal).AtVec(0)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, &ModelRuntimeError{Op: "forward", Err: fmt.Errorf("non-finite output")}
	}
	cache.out = out
	return cache, nil
}

// Forward runs single-sample inference, as used by the autoregressive
// prediction loop. No dropout, no caching beyond the pass itself.
func (m *Model) Forward(window []float64) (float64, error) {
	cache, err := m.forwardSample(window, false)
	if err != nil {
		return 0, err
	}
	return cache.out, nil
}

// backwardSample backpropagates the squared-error gradient for one cached
// sample, accumulating weight gradients across the batch.
func (m *Model) backwardSample(cache *sampleCache, target float64) {
	dy := mat.NewVecDense(1, []float64{2 * (cache.out - target)})
	dh := m.head.backward(cache.hFinal, dy)
	if cache.dropMask != nil {
		dhd := dh.RawVector().Data
		for i, mk := range cache.dropMask {
			dhd[i] *= mk
		}
	}

	// Gradient enters the top layer only at the last timestep; lower layers
	// receive per-timestep gradients from the layer above.
	T := len(cache.steps[0])
	dhExt := make([]*mat.VecDense, T)
	dhExt[T-1] = dh
	for li := len(m.cells) - 1; li >= 0; li-- {
		dx := m.cells[li].backward(cache.steps[li], dhExt)
		dhExt = dx
	}
}

func (m *Model) allParams() []param {
	var ps []param
	for _, c := range m.cells {
		ps = append(ps, c.params()...)
	}
	ps = append(ps, m.head.params()...)
	return ps
}

func (m *Model) zeroGrads() {
	for _, c := range m.cells {
		c.zeroGrads()
	}
	m.head.zeroGrads()
}

// trainBatch runs forward/backward over one batch and applies a single Adam
// step on the averaged gradients. Returns the mean squared error.
func (m *Model) trainBatch(inputs [][]float64, targets [][]float64) (float64, error) {
	m.zeroGrads()
	var loss float64
	for i, window := range inputs {
		cache, err := m.forwardSample(window, true)
		if err != nil {
			return 0, err
		}
		diff := cache.out - targets[i][0]
		loss += diff * diff
		m.backwardSample(cache, targets[i][0])
	}
	n := float64(len(inputs))
	loss /= n
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, &ModelRuntimeError{Op: "train", Err: fmt.Errorf("non-finite loss")}
	}

	params := m.allParams()
	for _, p := range params {
		for j := range p.grad {
			p.grad[j] /= n
		}
	}
	clipGradients(params, gradClipNorm)
	m.opt.update(params)
	return loss, nil
}

// evalLoss computes mean squared error without gradient updates.
func (m *Model) evalLoss(inputs [][]float64, targets [][]float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	var loss float64
	for i, window := range inputs {
		out, err := m.Forward(window)
		if err != nil {
			return 0, err
		}
		diff := out - targets[i][0]
		loss += diff * diff
	}
	return loss / float64(len(inputs)), nil
}

// Tensor is a named weight matrix in flat row-major form, the unit of
// checkpoint serialization.
type Tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Tensors returns the model's weights in a stable order. The returned slices
// alias model storage; callers must copy before mutating.
func (m *Model) Tensors() []Tensor {
	var ts []Tensor
	for i, c := range m.cells {
		prefix := fmt.Sprintf("lstm%d.", i)
		wr, wc := c.wx.Dims()
		ts = append(ts, Tensor{Name: prefix + "wx", Rows: wr, Cols: wc, Data: c.wx.RawMatrix().Data})
		hr, hc := c.wh.Dims()
		ts = append(ts, Tensor{Name: prefix + "wh", Rows: hr, Cols: hc, Data: c.wh.RawMatrix().Data})
		ts = append(ts, Tensor{Name: prefix + "b", Rows: c.b.Len(), Cols: 1, Data: c.b.RawVector().Data})
	}
	dr, dc := m.head.w.Dims()
	ts = append(ts, Tensor{Name: "dense.w", Rows: dr, Cols: dc, Data: m.head.w.RawMatrix().Data})
	ts = append(ts, Tensor{Name: "dense.b", Rows: m.head.b.Len(), Cols: 1, Data: m.head.b.RawVector().Data})
	return ts
}

// LoadTensors copies previously serialized weights into the model. Shapes
// must match the architecture built from the config.
func (m *Model) LoadTensors(ts []Tensor) error {
	want := m.Tensors()
	if len(ts) != len(want) {
		return &ModelRuntimeError{Op: "load",
			Err: fmt.Errorf("tensor count %d does not match architecture (want %d)", len(ts), len(want))}
	}
	for i, t := range ts {
		w := want[i]
		if t.Name != w.Name || t.Rows != w.Rows || t.Cols != w.Cols || len(t.Data) != len(w.Data) {
			return &ModelRuntimeError{Op: "load",
				Err: fmt.Errorf("tensor %q shape mismatch (%dx%d vs %dx%d)", t.Name, t.Rows, t.Cols, w.Rows, w.Cols)}
		}
		copy(w.Data, t.Data)
	}
	return nil
}
