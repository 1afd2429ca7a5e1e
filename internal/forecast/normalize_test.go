package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFitNormalizationRoundTrip(t *testing.T) {
	series := []float64{102.5, 98.3, 110.0, 95.75, 104.2}
	params, err := FitNormalization(series)
	require.NoError(t, err)
	require.Equal(t, 95.75, params.Min)
	require.InDelta(t, 110.0-95.75, params.Range, 1e-12)

	for _, v := range series {
		n := params.Normalize(v)
		require.GreaterOrEqual(t, n, 0.0)
		require.LessOrEqual(t, n, 1.0)
		require.InDelta(t, v, params.Denormalize(n), 1e-9)
	}
}

func TestFitNormalizationRejectsEmpty(t *testing.T) {
	_, err := FitNormalization(nil)
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestFitNormalizationRejectsNonFinite(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FitNormalization([]float64{100, bad, 102})
		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid)
	}
}

func TestFitNormalizationDegenerateSeries(t *testing.T) {
	_, err := FitNormalization([]float64{50, 50, 50, 50})
	var degenerate *DegenerateDataError
	require.ErrorAs(t, err, &degenerate)
	require.Equal(t, 50.0, degenerate.Value)
}

func TestNormalizeSeriesBounds(t *testing.T) {
	series := []float64{10, 20, 30}
	params, err := FitNormalization(series)
	require.NoError(t, err)

	norm := params.NormalizeSeries(series)
	require.Equal(t, []float64{0, 0.5, 1}, norm)
}

func TestDenormalizeExtrapolation(t *testing.T) {
	params := NormalizationParams{Min: 100, Range: 50}
	// Autoregressive rollouts can predict outside the fitted range.
	require.InDelta(t, 160.0, params.Denormalize(1.2), 1e-12)
	require.InDelta(t, 95.0, params.Denormalize(-0.1), 1e-12)
}
