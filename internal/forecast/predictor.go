package forecast

import (
	"context"
	"time"

	"StockCast/internal/domain/models"
)

// Predict rolls the trained model forward horizon steps from the tail of the
// series. The trailing window is normalized with the model's own fitted
// params; each prediction is fed back as the next input (the window slides:
// drop oldest, append newest). Dates advance per prediction step to the next
// trading day after the previous one.
//
// Feeding predictions back accumulates noise over long horizons; that is
// accepted behavior for this model family.
func Predict(ctx context.Context, tm *TrainedModel, series []float64, lastDate time.Time, horizon int) ([]models.PredictionPoint, error) {
	if horizon < 1 {
		return nil, &InvalidInputError{Reason: "horizon must be positive"}
	}
	l := tm.Config.SequenceLength
	if len(series) < l {
		return nil, &InsufficientDataError{Required: l, Actual: len(series), Detail: "prediction window"}
	}

	window := make([]float64, l)
	for i, v := range series[len(series)-l:] {
		window[i] = tm.Params.Normalize(v)
	}

	out := make([]models.PredictionPoint, 0, horizon)
	date := lastDate
	for step := 0; step < horizon; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := tm.Model.Forward(window)
		if err != nil {
			return nil, err
		}
		date = NextTradingDay(date)
		out = append(out, models.PredictionPoint{
			Date:       date,
			Prediction: tm.Params.Denormalize(next),
		})
		copy(window, window[1:])
		window[l-1] = next
	}
	return out, nil
}
