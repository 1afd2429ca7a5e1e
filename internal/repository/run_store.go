package repository

import (
	"context"
	"fmt"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	pkgclickhouse "StockCast/pkg/clickhouse"
)

const runsTable = "training_runs"

var runsSchema = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		fingerprint    String,
		symbol         String,
		status         LowCardinality(String),
		epochs         UInt32,
		data_points    UInt32,
		final_loss     Float64,
		final_val_loss Float64,
		duration_ms    Int64,
		created_at     DateTime
	) ENGINE = MergeTree()
	ORDER BY (symbol, created_at)`, runsTable),
}

// ClickHouseRunStore persists training run records to ClickHouse.
type ClickHouseRunStore struct {
	client *pkgclickhouse.Client
}

// NewClickHouseRunStore creates a run store on an existing client.
func NewClickHouseRunStore(client *pkgclickhouse.Client) repository.RunStore {
	return &ClickHouseRunStore{client: client}
}

func (s *ClickHouseRunStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, runsSchema)
}

func (s *ClickHouseRunStore) Record(ctx context.Context, run *models.TrainingRun) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(fingerprint, symbol, status, epochs, data_points, final_loss, final_val_loss, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, runsTable)
	_, err := s.client.DB().ExecContext(ctx, q,
		run.Fingerprint,
		run.Symbol,
		run.Status,
		uint32(run.Epochs),
		uint32(run.DataPoints),
		run.FinalLoss,
		run.FinalValLoss,
		run.DurationMs,
		run.CreatedAt,
	)
	return err
}

func (s *ClickHouseRunStore) Recent(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT fingerprint, symbol, status, epochs, data_points,
		final_loss, final_val_loss, duration_ms, created_at
		FROM %s ORDER BY created_at DESC LIMIT ?`, runsTable)
	rows, err := s.client.DB().QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.TrainingRun
	for rows.Next() {
		var r models.TrainingRun
		var epochs, dataPoints uint32
		if err := rows.Scan(&r.Fingerprint, &r.Symbol, &r.Status, &epochs, &dataPoints,
			&r.FinalLoss, &r.FinalValLoss, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Epochs = int(epochs)
		r.DataPoints = int(dataPoints)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (s *ClickHouseRunStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseRunStore) Close() error {
	return nil // client lifecycle is managed by the app
}
