package forecast

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockCast/internal/domain/models"
)

// memStore is an in-memory CheckpointStore for trainer tests. It snapshots
// tensors on Save so the stored weights survive the model's Release.
type memStore struct {
	mu      sync.Mutex
	saved   map[string]*savedModel
	saveErr error
	saves   int
}

type savedModel struct {
	symbol  string
	cfg     ModelConfig
	params  NormalizationParams
	tensors []Tensor
	points  int
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*savedModel)}
}

func (s *memStore) Exists(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[fingerprint]
	return ok
}

func (s *memStore) Save(_ context.Context, tm *TrainedModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	src := tm.Model.Tensors()
	tensors := make([]Tensor, len(src))
	for i, t := range src {
		data := make([]float64, len(t.Data))
		copy(data, t.Data)
		tensors[i] = Tensor{Name: t.Name, Rows: t.Rows, Cols: t.Cols, Data: data}
	}
	s.saved[tm.Fingerprint] = &savedModel{
		symbol:  tm.Symbol,
		cfg:     tm.Config,
		params:  tm.Params,
		tensors: tensors,
		points:  tm.DataPoints,
	}
	return nil
}

func (s *memStore) Load(_ context.Context, fingerprint string) (*TrainedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm, ok := s.saved[fingerprint]
	if !ok {
		return nil, errors.New("not found")
	}
	m := NewModel(sm.cfg)
	if err := m.LoadTensors(sm.tensors); err != nil {
		m.Release()
		return nil, err
	}
	return &TrainedModel{
		Model:          m,
		Symbol:         sm.symbol,
		Fingerprint:    fingerprint,
		Config:         sm.cfg,
		Params:         sm.params,
		DataPoints:     sm.points,
		CreatedAt:      time.Now().UTC(),
		FromCheckpoint: true,
		Saved:          true,
	}, nil
}

// syntheticCloses generates a noisy sine wave around a base price, the kind
// of shape the model should make visible progress on in a few epochs.
func syntheticCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/8) + 0.3*float64(i%5)
	}
	return out
}

func trainerConfig() ModelConfig {
	return ModelConfig{
		SequenceLength: 30,
		Epochs:         5,
		BatchSize:      16,
		DaysToPredict:  5,
		HiddenUnits:    8,
		Layers:         2,
		Seed:           42,
	}
}

func TestTrainRejectsShortSeries(t *testing.T) {
	tr := NewTrainer(nil, false, nil)
	cfg := ModelConfig{SequenceLength: 10, Epochs: 1, BatchSize: 4, DaysToPredict: 5}

	_, err := tr.Train(context.Background(), "AAPL", seq(8), cfg, nil)
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 15, insufficient.Required)
	require.Equal(t, 8, insufficient.Actual)
	require.Contains(t, err.Error(), "need at least 15 data points, got 8")
}

func TestTrainRejectsTooFewWindowedSamples(t *testing.T) {
	tr := NewTrainer(nil, false, nil)
	cfg := ModelConfig{SequenceLength: 30, Epochs: 1, BatchSize: 4, DaysToPredict: 1, Seed: 1}

	// 35 points pass the length check (need 31) but yield only 5 windows,
	// under the default minimum of 10.
	_, err := tr.Train(context.Background(), "AAPL", syntheticCloses(35), cfg, nil)
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, DefaultMinSamples, insufficient.Required)
	require.Contains(t, err.Error(), "windowed training samples")
}

func TestTrainRejectsDegenerateSeries(t *testing.T) {
	tr := NewTrainer(nil, false, nil)
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 42
	}

	_, err := tr.Train(context.Background(), "FLAT", flat, trainerConfig(), nil)
	var degenerate *DegenerateDataError
	require.ErrorAs(t, err, &degenerate)
}

func TestTrainEndToEnd(t *testing.T) {
	store := newMemStore()
	tr := NewTrainer(store, false, nil)
	cfg := trainerConfig()
	closes := syntheticCloses(400)

	var progress []Progress
	tm, err := tr.Train(context.Background(), "AAPL", closes, cfg, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	defer tm.Release()

	require.Equal(t, "AAPL", tm.Symbol)
	require.Equal(t, Fingerprint("AAPL", cfg.WithDefaults()), tm.Fingerprint)
	require.Len(t, tm.History.Loss, cfg.Epochs)
	require.Len(t, tm.History.ValLoss, cfg.Epochs)
	require.Equal(t, 400, tm.DataPoints)
	require.False(t, tm.FromCheckpoint)
	require.True(t, tm.Saved)
	require.True(t, store.Exists(tm.Fingerprint))

	// Loss should trend down on this synthetic shape.
	first, last := tm.History.Loss[0], tm.History.Loss[cfg.Epochs-1]
	require.Less(t, last, first)

	// Progress is monotone and walks the full stage sequence.
	prev := 0
	for _, p := range progress {
		require.GreaterOrEqual(t, p.Percent, prev, "stage %s regressed", p.Stage)
		prev = p.Percent
	}
	stages := make([]Stage, len(progress))
	for i, p := range progress {
		stages[i] = p.Stage
	}
	require.Contains(t, stages, StageInitializing)
	require.Contains(t, stages, StagePreprocessing)
	require.Contains(t, stages, StageBuildingModel)
	require.Contains(t, stages, StageTraining)
	require.Contains(t, stages, StageEvaluating)
	require.Contains(t, stages, StageSaving)
}

func TestTrainEpochProgressPercent(t *testing.T) {
	store := newMemStore()
	tr := NewTrainer(store, false, nil)
	cfg := trainerConfig()

	var epochs []Progress
	_, err := tr.Train(context.Background(), "MSFT", syntheticCloses(400), cfg, func(p Progress) {
		if p.Stage == StageTraining {
			epochs = append(epochs, p)
		}
	})
	require.NoError(t, err)

	require.Len(t, epochs, cfg.Epochs)
	require.Equal(t, 32, epochs[0].Percent) // 20 + 60*1/5
	require.Equal(t, 80, epochs[cfg.Epochs-1].Percent)
	for i, p := range epochs {
		require.Equal(t, i+1, p.Epoch)
		require.Equal(t, cfg.Epochs, p.TotalEpochs)
		require.False(t, math.IsNaN(p.Loss))
	}
}

func TestTrainCancellationReleasesHandles(t *testing.T) {
	baseline := LiveHandles()
	tr := NewTrainer(nil, false, nil)
	cfg := trainerConfig()
	cfg.Epochs = 50

	ctx, cancel := context.WithCancel(context.Background())
	tm, err := tr.Train(ctx, "AAPL", syntheticCloses(400), cfg, func(p Progress) {
		if p.Stage == StageTraining && p.Epoch == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, tm)
	require.Equal(t, baseline, LiveHandles())
}

func TestTrainReusesCheckpoint(t *testing.T) {
	store := newMemStore()
	cfg := trainerConfig()
	closes := syntheticCloses(400)

	first := NewTrainer(store, true, nil)
	tm1, err := first.Train(context.Background(), "AAPL", closes, cfg, nil)
	require.NoError(t, err)
	tm1.Release()

	var stages []Stage
	tm2, err := first.Train(context.Background(), "AAPL", closes, cfg, func(p Progress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)
	defer tm2.Release()

	require.True(t, tm2.FromCheckpoint)
	require.Empty(t, tm2.History.Loss)
	require.Contains(t, stages, StageLoadedExisting)
	require.NotContains(t, stages, StageTraining)
	require.Equal(t, 1, store.saves)
}

func TestTrainWithoutReuseRetrains(t *testing.T) {
	store := newMemStore()
	cfg := trainerConfig()
	closes := syntheticCloses(400)

	tr := NewTrainer(store, false, nil)
	tm1, err := tr.Train(context.Background(), "AAPL", closes, cfg, nil)
	require.NoError(t, err)
	tm1.Release()

	tm2, err := tr.Train(context.Background(), "AAPL", closes, cfg, nil)
	require.NoError(t, err)
	defer tm2.Release()

	require.False(t, tm2.FromCheckpoint)
	require.Equal(t, 2, store.saves)
}

func TestTrainToleratesSaveFailure(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	tr := NewTrainer(store, false, nil)

	var messages []string
	tm, err := tr.Train(context.Background(), "AAPL", syntheticCloses(400), trainerConfig(), func(p Progress) {
		messages = append(messages, p.Message)
	})
	require.NoError(t, err)
	defer tm.Release()

	require.False(t, tm.Saved)
	require.Contains(t, strings.Join(messages, "\n"), "checkpoint save failed")
}

func TestValidateSeries(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
	}
	good := []models.TimeSeriesPoint{
		{Date: day(5), Close: 100},
		{Date: day(6), Close: 101},
		{Date: day(7), Close: 102},
	}
	require.NoError(t, ValidateSeries(good))

	var invalid *InvalidInputError
	require.ErrorAs(t, ValidateSeries(nil), &invalid)

	nonFinite := []models.TimeSeriesPoint{{Date: day(5), Close: math.NaN()}}
	require.ErrorAs(t, ValidateSeries(nonFinite), &invalid)

	unordered := []models.TimeSeriesPoint{
		{Date: day(6), Close: 100},
		{Date: day(5), Close: 101},
	}
	require.ErrorAs(t, ValidateSeries(unordered), &invalid)

	duplicate := []models.TimeSeriesPoint{
		{Date: day(5), Close: 100},
		{Date: day(5), Close: 101},
	}
	require.ErrorAs(t, ValidateSeries(duplicate), &invalid)
}
