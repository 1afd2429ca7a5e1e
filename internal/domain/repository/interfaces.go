package repository

import (
	"context"

	"StockCast/internal/domain/models"
)

// ProgressPublisher pushes training progress events to an external broker
// for downstream consumers (dashboards, alerting).
type ProgressPublisher interface {
	Publish(ctx context.Context, event *models.ProgressEvent) error
	Close() error
}

// RunStore records completed training runs for offline analysis.
type RunStore interface {
	Init(ctx context.Context) error // ensure tables
	Record(ctx context.Context, run *models.TrainingRun) error
	Recent(ctx context.Context, limit int) ([]*models.TrainingRun, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics abstracts the counters and histograms the pipeline records.
type Metrics interface {
	RecordJobStarted(symbol string)
	RecordJobFinished(symbol, status string)
	RecordEpoch(symbol string, seconds float64)
	RecordTrainingDuration(symbol string, seconds float64)
	RecordFinalLoss(symbol string, loss, valLoss float64)
	RecordError(kind string)
	SetActiveJobs(n int)
}
