package models

import "time"

// TimeSeriesPoint is one daily OHLCV observation. The series handed to the
// pipeline is strictly increasing by date with no duplicates.
type TimeSeriesPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// StockData is the boundary input: an already-fetched, date-ascending series
// for one instrument.
type StockData struct {
	Symbol      string            `json:"symbol"`
	Name        string            `json:"name,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated,omitempty"`
	TimeSeries  []TimeSeriesPoint `json:"timeSeries"`
}

// Closes returns the closing prices in series order.
func (s *StockData) Closes() []float64 {
	out := make([]float64, len(s.TimeSeries))
	for i, p := range s.TimeSeries {
		out[i] = p.Close
	}
	return out
}

// LastDate returns the date of the most recent point, or the zero time for an
// empty series.
func (s *StockData) LastDate() time.Time {
	if len(s.TimeSeries) == 0 {
		return time.Time{}
	}
	return s.TimeSeries[len(s.TimeSeries)-1].Date
}

// PredictionPoint is one forecasted trading day.
type PredictionPoint struct {
	Date       time.Time `json:"date"`
	Prediction float64   `json:"prediction"`
}

// ModelData summarizes a trained model for API responses and checkpoint
// listings without exposing weights.
type ModelData struct {
	Fingerprint    string    `json:"fingerprint"`
	Symbol         string    `json:"symbol"`
	Min            float64   `json:"min"`
	Range          float64   `json:"range"`
	DataPoints     int       `json:"dataPoints"`
	Loss           []float64 `json:"loss"`
	ValLoss        []float64 `json:"valLoss"`
	FromCheckpoint bool      `json:"fromCheckpoint"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TrainingRun is the durable record of one completed (or failed) training
// run, persisted for offline analysis.
type TrainingRun struct {
	Fingerprint  string    `json:"fingerprint"`
	Symbol       string    `json:"symbol"`
	Status       string    `json:"status"`
	Epochs       int       `json:"epochs"`
	DataPoints   int       `json:"dataPoints"`
	FinalLoss    float64   `json:"finalLoss"`
	FinalValLoss float64   `json:"finalValLoss"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProgressEvent is the wire form of one progress or status update, keyed by
// model fingerprint. Events for a fingerprint are emitted in order.
type ProgressEvent struct {
	Type    string       `json:"type"` // "progress" or "status"
	ModelID string       `json:"modelId"`
	Data    ProgressData `json:"data"`
}

// ProgressData carries the stage detail of a ProgressEvent.
type ProgressData struct {
	Stage       string  `json:"stage"`
	Percent     int     `json:"percent"`
	Message     string  `json:"message,omitempty"`
	Epoch       int     `json:"epoch,omitempty"`
	TotalEpochs int     `json:"totalEpochs,omitempty"`
	Loss        float64 `json:"loss,omitempty"`
	ValLoss     float64 `json:"val_loss,omitempty"`
}
