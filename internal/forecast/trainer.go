package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"
)

// Stage names one step of the training pipeline state machine.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StagePreprocessing  Stage = "preprocessing"
	StageLoadingModel   Stage = "loading-checkpoint"
	StageLoadedExisting Stage = "loaded-existing"
	StageBuildingModel  Stage = "building-model"
	StageTraining       Stage = "training"
	StageEvaluating     Stage = "evaluating"
	StageSaving         Stage = "saving"
	StagePredicting     Stage = "predicting"
	StageDone           Stage = "done"
)

// Progress percentage bands per stage. Training owns the widest band and is
// monotone in epoch index.
const (
	pctInit       = 2
	pctPreprocess = 8
	pctBuild      = 15
	pctTrainLow   = 20
	pctTrainHigh  = 80
	pctEvaluate   = 85
	pctLoaded     = 90
	pctSaved      = 92
)

// Progress is one pipeline progress report. Epoch fields are set only during
// the training stage.
type Progress struct {
	Stage       Stage
	Percent     int
	Message     string
	Epoch       int
	TotalEpochs int
	Loss        float64
	ValLoss     float64
}

// ProgressFunc receives progress reports at suspension points, in order.
type ProgressFunc func(Progress)

// TrainingHistory records per-epoch losses. Append-only during training,
// immutable afterward. Empty when a checkpoint was reused.
type TrainingHistory struct {
	Loss    []float64 `json:"loss"`
	ValLoss []float64 `json:"val_loss"`
}

// TrainedModel bundles a model with everything needed to predict from it and
// to persist it. The holder owns the embedded Model and must Release it.
type TrainedModel struct {
	Model       *Model
	Symbol      string
	Fingerprint string
	Config      ModelConfig
	Params      NormalizationParams
	History     TrainingHistory
	DataPoints  int
	CreatedAt   time.Time

	// FromCheckpoint is true when training was skipped in favor of a saved
	// model; History is empty in that case.
	FromCheckpoint bool
	// Saved is false when training succeeded but the checkpoint write failed.
	Saved bool
}

// Release frees the underlying model handle.
func (tm *TrainedModel) Release() {
	if tm.Model != nil {
		tm.Model.Release()
	}
}

// CheckpointStore is the persistence boundary the trainer depends on.
// Implemented by internal/checkpoint.
type CheckpointStore interface {
	Exists(fingerprint string) bool
	Load(ctx context.Context, fingerprint string) (*TrainedModel, error)
	Save(ctx context.Context, tm *TrainedModel) error
}

// ValidateSeries rejects malformed boundary input before any model state is
// allocated: empty series, non-finite closes, unordered or duplicate dates.
func ValidateSeries(points []models.TimeSeriesPoint) error {
	if len(points) == 0 {
		return &InvalidInputError{Reason: "empty time series"}
	}
	for i, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return &InvalidInputError{Reason: fmt.Sprintf("non-finite close at index %d", i)}
		}
		if i > 0 && !points[i-1].Date.Before(p.Date) {
			return &InvalidInputError{Reason: fmt.Sprintf("dates not strictly increasing at index %d", i)}
		}
	}
	return nil
}

// Trainer orchestrates preprocessing, checkpoint reuse, the epoch/batch loop,
// validation tracking and checkpoint persistence for one run at a time.
type Trainer struct {
	store CheckpointStore
	reuse bool
	log   *logger.Logger
}

// NewTrainer creates a trainer. store may be nil (no persistence, no reuse);
// reuse controls whether an existing checkpoint short-circuits training.
func NewTrainer(store CheckpointStore, reuse bool, log *logger.Logger) *Trainer {
	if log == nil {
		log = logger.Default()
	}
	return &Trainer{store: store, reuse: reuse, log: log}
}

// Train runs the full pipeline over the closing-price series and returns the
// trained model. Cancellation is observed at epoch boundaries and every few
// batches; on cancellation all allocated handles are released before the
// context error propagates.
func (t *Trainer) Train(ctx context.Context, symbol string, closes []float64, cfg ModelConfig, onProgress ProgressFunc) (*TrainedModel, error) {
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emit(Progress{Stage: StageInitializing, Percent: pctInit, Message: "validating input"})

	required := cfg.SequenceLength + cfg.DaysToPredict
	if len(closes) < required {
		return nil, &InsufficientDataError{Required: required, Actual: len(closes)}
	}

	params, err := FitNormalization(closes)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(symbol, cfg)

	if t.reuse && t.store != nil && t.store.Exists(fp) {
		emit(Progress{Stage: StageLoadingModel, Percent: pctBuild, Message: "loading saved checkpoint"})
		tm, err := t.store.Load(ctx, fp)
		if err == nil {
			t.log.Info("reusing checkpoint, skipping training",
				logger.String("symbol", symbol), logger.String("fingerprint", fp))
			emit(Progress{Stage: StageLoadedExisting, Percent: pctLoaded, Message: "reusing trained model"})
			return tm, nil
		}
		// An unloadable checkpoint falls back to a fresh training run.
		t.log.Warn("checkpoint load failed, retraining",
			logger.String("fingerprint", fp), logger.Error(err))
	}

	emit(Progress{Stage: StagePreprocessing, Percent: pctPreprocess, Message: "normalizing and windowing"})
	normalized := params.NormalizeSeries(closes)

	// Single-step model family: targets are the next normalized value; the
	// multi-day horizon is an autoregressive rollout at prediction time.
	ds, err := MakeWindows(normalized, cfg.SequenceLength, 1)
	if err != nil {
		return nil, err
	}
	defer ds.Release()

	if ds.Len() < cfg.MinTrainingSamples {
		return nil, &InsufficientDataError{
			Required: cfg.MinTrainingSamples,
			Actual:   ds.Len(),
			Detail:   "windowed training samples",
		}
	}
	trainSet, valSet := ds.Split(cfg.ValidationSplit)

	emit(Progress{Stage: StageBuildingModel, Percent: pctBuild, Message: "building model"})
	model := NewModel(cfg)

	start := time.Now()
	history := TrainingHistory{}
	trainBand := float64(pctTrainHigh - pctTrainLow)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			model.Release()
			return nil, err
		}

		var epochLoss float64
		batches := 0
		for i := 0; i < trainSet.Len(); i += cfg.BatchSize {
			if batches%4 == 0 {
				if err := ctx.Err(); err != nil {
					model.Release()
					return nil, err
				}
			}
			end := i + cfg.BatchSize
			if end > trainSet.Len() {
				end = trainSet.Len()
			}
			loss, err := model.trainBatch(trainSet.Inputs[i:end], trainSet.Targets[i:end])
			if err != nil {
				model.Release()
				return nil, err
			}
			epochLoss += loss
			batches++
		}
		epochLoss /= float64(batches)

		valLoss, err := model.evalLoss(valSet.Inputs, valSet.Targets)
		if err != nil {
			model.Release()
			return nil, err
		}
		if valSet.Len() == 0 {
			valLoss = epochLoss
		}
		history.Loss = append(history.Loss, epochLoss)
		history.ValLoss = append(history.ValLoss, valLoss)

		pct := pctTrainLow + int(trainBand*float64(epoch)/float64(cfg.Epochs))
		emit(Progress{
			Stage:       StageTraining,
			Percent:     pct,
			Message:     fmt.Sprintf("epoch %d/%d", epoch, cfg.Epochs),
			Epoch:       epoch,
			TotalEpochs: cfg.Epochs,
			Loss:        epochLoss,
			ValLoss:     valLoss,
		})
	}

	emit(Progress{Stage: StageEvaluating, Percent: pctEvaluate, Message: "evaluating validation loss"})
	t.log.Info("training complete",
		logger.String("symbol", symbol),
		logger.String("fingerprint", fp),
		logger.Int("epochs", cfg.Epochs),
		logger.Int("samples", ds.Len()),
		logger.Float64("loss", history.Loss[len(history.Loss)-1]),
		logger.Float64("val_loss", history.ValLoss[len(history.ValLoss)-1]),
		logger.Duration("took", time.Since(start)))

	tm := &TrainedModel{
		Model:       model,
		Symbol:      symbol,
		Fingerprint: fp,
		Config:      cfg,
		Params:      params,
		History:     history,
		DataPoints:  len(closes),
		CreatedAt:   time.Now().UTC(),
		Saved:       false,
	}

	if t.store != nil {
		emit(Progress{Stage: StageSaving, Percent: pctSaved, Message: "saving checkpoint"})
		if err := t.store.Save(ctx, tm); err != nil {
			// A failed save is tolerated: the in-memory model still serves the
			// immediate prediction, but the caller is told it was not durable.
			t.log.Warn("checkpoint save failed",
				logger.String("fingerprint", fp), logger.Error(err))
			emit(Progress{Stage: StageSaving, Percent: pctSaved, Message: "checkpoint save failed; model not persisted"})
		} else {
			tm.Saved = true
		}
	}

	return tm, nil
}
