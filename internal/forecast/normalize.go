package forecast

import "math"

// NormalizationParams maps raw closing prices into [0,1] and back. The same
// params fitted at training time must be reused for denormalization; a
// mismatch silently corrupts predictions.
type NormalizationParams struct {
	Min   float64 `json:"min"`
	Range float64 `json:"range"`
}

// FitNormalization computes min/range over the full closing-price series.
func FitNormalization(series []float64) (NormalizationParams, error) {
	if len(series) == 0 {
		return NormalizationParams{}, &InvalidInputError{Reason: "empty series"}
	}
	min, max := series[0], series[0]
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NormalizationParams{}, &InvalidInputError{Reason: "non-finite closing price"}
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return NormalizationParams{}, &DegenerateDataError{Value: min}
	}
	return NormalizationParams{Min: min, Range: max - min}, nil
}

// Normalize maps v linearly onto [0,1] for v inside the fitted range.
func (p NormalizationParams) Normalize(v float64) float64 {
	return (v - p.Min) / p.Range
}

// Denormalize is the exact inverse of Normalize. Extrapolated predictions may
// legitimately fall outside [Min, Min+Range].
func (p NormalizationParams) Denormalize(v float64) float64 {
	return v*p.Range + p.Min
}

// NormalizeSeries normalizes every value into a new slice.
func (p NormalizationParams) NormalizeSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = p.Normalize(v)
	}
	return out
}
