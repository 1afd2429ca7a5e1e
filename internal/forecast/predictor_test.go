package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func trainedFixture(t *testing.T) (*TrainedModel, []float64) {
	t.Helper()
	closes := syntheticCloses(400)
	tr := NewTrainer(nil, false, nil)
	cfg := trainerConfig()
	cfg.Epochs = 2
	tm, err := tr.Train(context.Background(), "AAPL", closes, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(tm.Release)
	return tm, closes
}

func TestPredictHorizonAndDates(t *testing.T) {
	tm, closes := trainedFixture(t)
	lastDate := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC) // Friday

	points, err := Predict(context.Background(), tm, closes, lastDate, 5)
	require.NoError(t, err)
	require.Len(t, points, 5)

	prev := lastDate
	for _, p := range points {
		require.True(t, p.Date.After(prev), "dates must advance")
		require.NotEqual(t, time.Saturday, p.Date.Weekday())
		require.NotEqual(t, time.Sunday, p.Date.Weekday())
		prev = p.Date
	}
	// Friday rolls over the weekend to Monday.
	require.Equal(t, time.Monday, points[0].Date.Weekday())
	require.Equal(t, 31, points[0].Date.Day())
}

func TestPredictValuesStayPlausible(t *testing.T) {
	tm, closes := trainedFixture(t)

	points, err := Predict(context.Background(), tm, closes, time.Now(), 10)
	require.NoError(t, err)
	for _, p := range points {
		// A lightly trained model still predicts in denormalized price space,
		// broadly within the fitted range.
		require.Greater(t, p.Prediction, tm.Params.Min-tm.Params.Range)
		require.Less(t, p.Prediction, tm.Params.Min+2*tm.Params.Range)
	}
}

func TestPredictRejectsBadHorizon(t *testing.T) {
	tm, closes := trainedFixture(t)

	var invalid *InvalidInputError
	_, err := Predict(context.Background(), tm, closes, time.Now(), 0)
	require.ErrorAs(t, err, &invalid)
	_, err = Predict(context.Background(), tm, closes, time.Now(), -3)
	require.ErrorAs(t, err, &invalid)
}

func TestPredictRejectsShortSeries(t *testing.T) {
	tm, _ := trainedFixture(t)

	_, err := Predict(context.Background(), tm, seq(10), time.Now(), 5)
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, tm.Config.SequenceLength, insufficient.Required)
	require.Contains(t, err.Error(), "prediction window")
}

func TestPredictObservesCancellation(t *testing.T) {
	tm, closes := trainedFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Predict(ctx, tm, closes, time.Now(), 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFingerprintNormalizesSymbol(t *testing.T) {
	cfg := trainerConfig()
	require.Equal(t, Fingerprint("AAPL", cfg), Fingerprint(" aapl ", cfg))

	other := cfg
	other.Epochs++
	require.NotEqual(t, Fingerprint("AAPL", cfg), Fingerprint("AAPL", other))
	require.NotEqual(t, Fingerprint("AAPL", cfg), Fingerprint("MSFT", cfg))
}
