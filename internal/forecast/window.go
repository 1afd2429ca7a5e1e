package forecast

// WindowedDataset holds fixed-length input windows paired with the following
// target values, in series order. No shuffling happens at this stage so the
// train/validation split stays temporal.
type WindowedDataset struct {
	Inputs  [][]float64
	Targets [][]float64

	root bool // true for the allocation returned by MakeWindows
}

// MakeWindows slides a window of length l with step 1 across the series,
// pairing each window with the next h values.
func MakeWindows(series []float64, l, h int) (*WindowedDataset, error) {
	if l < 1 || h < 1 {
		return nil, &InvalidInputError{Reason: "window length and horizon must be positive"}
	}
	count := len(series) - l - h + 1
	if count < 1 {
		return nil, &InsufficientDataError{Required: l + h, Actual: len(series)}
	}

	ds := &WindowedDataset{
		Inputs:  make([][]float64, count),
		Targets: make([][]float64, count),
		root:    true,
	}
	for i := 0; i < count; i++ {
		ds.Inputs[i] = series[i : i+l : i+l]
		ds.Targets[i] = series[i+l : i+l+h : i+l+h]
	}
	retainHandle()
	return ds, nil
}

// Len returns the number of input/target pairs.
func (d *WindowedDataset) Len() int { return len(d.Inputs) }

// Split returns contiguous train/validation views. Validation is always the
// most recent valFrac of history, preventing lookahead leakage. The views
// share backing storage with d and must not outlive it.
func (d *WindowedDataset) Split(valFrac float64) (train, val *WindowedDataset) {
	n := d.Len()
	valCount := int(float64(n) * valFrac)
	if valCount < 1 && n > 1 {
		valCount = 1
	}
	cut := n - valCount
	train = &WindowedDataset{Inputs: d.Inputs[:cut], Targets: d.Targets[:cut]}
	val = &WindowedDataset{Inputs: d.Inputs[cut:], Targets: d.Targets[cut:]}
	return train, val
}

// Release drops the dataset's backing references. Safe to call more than
// once; only the root dataset from MakeWindows holds a handle.
func (d *WindowedDataset) Release() {
	if !d.root {
		return
	}
	d.root = false
	d.Inputs = nil
	d.Targets = nil
	releaseHandle()
}
