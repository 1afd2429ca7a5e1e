package models

// AnalyzeRequest is the POST /analyze body. Defaults are applied before
// validation; the stock data itself is validated by the pipeline.
type AnalyzeRequest struct {
	StockData      StockData `json:"stockData" validate:"required"`
	SequenceLength int       `json:"sequenceLength" default:"30" validate:"min=2,max=200"`
	Epochs         int       `json:"epochs" default:"10" validate:"min=1,max=500"`
	BatchSize      int       `json:"batchSize" default:"16" validate:"min=1,max=1024"`
	DaysToPredict  int       `json:"daysToPredict" default:"5" validate:"min=1,max=60"`
	// Wait=false returns the job id immediately; progress arrives on /ws.
	Wait *bool `json:"wait,omitempty"`
}

// Waiting reports whether the caller wants a synchronous response.
func (r *AnalyzeRequest) Waiting() bool {
	return r.Wait == nil || *r.Wait
}

// AnalyzeResponse is the synchronous POST /analyze result.
type AnalyzeResponse struct {
	ModelData   ModelData         `json:"modelData"`
	Predictions []PredictionPoint `json:"predictions"`
}

// JobAccepted is the asynchronous POST /analyze result.
type JobAccepted struct {
	JobID       string `json:"jobId"`
	Fingerprint string `json:"fingerprint"`
	Status      string `json:"status"`
}

// PredictRequest is the POST /models/:id/predict body: reuse a saved
// checkpoint against a fresh series without retraining.
type PredictRequest struct {
	StockData     StockData `json:"stockData" validate:"required"`
	DaysToPredict int       `json:"daysToPredict" default:"5" validate:"min=1,max=60"`
}

// JobView is the API snapshot of a training job.
type JobView struct {
	JobID       string `json:"jobId"`
	Fingerprint string `json:"fingerprint"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
}
