package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockCast/internal/forecast"
)

func testConfig() forecast.ModelConfig {
	return forecast.ModelConfig{
		SequenceLength: 10,
		Epochs:         3,
		BatchSize:      8,
		DaysToPredict:  2,
		HiddenUnits:    8,
		Layers:         2,
		Seed:           42,
	}.WithDefaults()
}

func trainedFixture(t *testing.T, symbol string) *forecast.TrainedModel {
	t.Helper()
	cfg := testConfig()
	m := forecast.NewModel(cfg)
	t.Cleanup(m.Release)
	return &forecast.TrainedModel{
		Model:       m,
		Symbol:      symbol,
		Fingerprint: forecast.Fingerprint(symbol, cfg),
		Config:      cfg,
		Params:      forecast.NormalizationParams{Min: 95.5, Range: 40.25},
		History: forecast.TrainingHistory{
			Loss:    []float64{0.3, 0.1, 0.05},
			ValLoss: []float64{0.35, 0.12, 0.07},
		},
		DataPoints: 250,
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tm := trainedFixture(t, "AAPL")
	ctx := context.Background()

	require.False(t, s.Exists(tm.Fingerprint))
	require.NoError(t, s.Save(ctx, tm))
	require.True(t, s.Exists(tm.Fingerprint))

	loaded, err := s.Load(ctx, tm.Fingerprint)
	require.NoError(t, err)
	defer loaded.Release()

	require.Equal(t, tm.Symbol, loaded.Symbol)
	require.Equal(t, tm.Config, loaded.Config)
	require.Equal(t, tm.Params, loaded.Params)
	require.Equal(t, tm.DataPoints, loaded.DataPoints)
	require.True(t, loaded.FromCheckpoint)
	require.True(t, loaded.Saved)
	// Reused checkpoints report no training history of their own.
	require.Empty(t, loaded.History.Loss)

	// Weights survive serialization bit for bit.
	want := tm.Model.Tensors()
	got := loaded.Model.Tensors()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Name, got[i].Name)
		require.Equal(t, want[i].Data, got[i].Data)
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveObservesCancelledContext(t *testing.T) {
	s := newTestStore(t)
	tm := trainedFixture(t, "AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Save(ctx, tm), context.Canceled)
	require.False(t, s.Exists(tm.Fingerprint))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	tm := trainedFixture(t, "AAPL")
	require.NoError(t, s.Save(context.Background(), tm))

	require.NoError(t, s.Delete(tm.Fingerprint))
	require.False(t, s.Exists(tm.Fingerprint))
	require.ErrorIs(t, s.Delete(tm.Fingerprint), ErrNotFound)
}

func TestGet(t *testing.T) {
	s := newTestStore(t)
	tm := trainedFixture(t, "TSLA")
	require.NoError(t, s.Save(context.Background(), tm))

	meta, err := s.Get(tm.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, "TSLA", meta.Symbol)
	require.Equal(t, tm.History, meta.History)

	view := meta.View()
	require.Equal(t, tm.Fingerprint, view.Fingerprint)
	require.Equal(t, tm.Params.Min, view.Min)
	require.True(t, view.FromCheckpoint)

	_, err = s.Get("deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := trainedFixture(t, "AAPL")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := trainedFixture(t, "MSFT")
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "MSFT", metas[0].Symbol)
	require.Equal(t, "AAPL", metas[1].Symbol)
}

func TestListSkipsCorruptMeta(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	tm := trainedFixture(t, "AAPL")
	require.NoError(t, s.Save(context.Background(), tm))

	corrupt := filepath.Join(dir, "0badc0de")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "meta.json"), []byte("{not json"), 0o644))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, tm.Fingerprint, metas[0].Fingerprint)
}

func TestLoadRejectsCorruptWeights(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	tm := trainedFixture(t, "AAPL")
	require.NoError(t, s.Save(context.Background(), tm))

	weights := filepath.Join(dir, tm.Fingerprint, "weights.bin")
	require.NoError(t, os.WriteFile(weights, []byte("XXXX garbage"), 0o644))

	_, err = s.Load(context.Background(), tm.Fingerprint)
	require.Error(t, err)
}
