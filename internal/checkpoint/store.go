package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/forecast"
	"StockCast/pkg/logger"
)

// ErrNotFound is returned when no checkpoint exists for a fingerprint.
var ErrNotFound = errors.New("checkpoint not found")

// IOError wraps filesystem failures so callers can tell persistence problems
// apart from corrupt or missing checkpoints.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

const (
	metaFile    = "meta.json"
	weightsFile = "weights.bin"
)

// Meta is the JSON sidecar stored next to the binary weights. It carries
// everything needed to rebuild the model architecture and denormalize its
// output without touching the weights file.
type Meta struct {
	Fingerprint string                       `json:"fingerprint"`
	Symbol      string                       `json:"symbol"`
	Config      forecast.ModelConfig         `json:"config"`
	Params      forecast.NormalizationParams `json:"normalization"`
	History     forecast.TrainingHistory     `json:"history"`
	DataPoints  int                          `json:"data_points"`
	CreatedAt   time.Time                    `json:"created_at"`
}

// View converts checkpoint metadata to the boundary representation.
func (m Meta) View() models.ModelData {
	return models.ModelData{
		Fingerprint:    m.Fingerprint,
		Symbol:         m.Symbol,
		Min:            m.Params.Min,
		Range:          m.Params.Range,
		DataPoints:     m.DataPoints,
		Loss:           m.History.Loss,
		ValLoss:        m.History.ValLoss,
		FromCheckpoint: true,
		CreatedAt:      m.CreatedAt,
	}
}

// FileStore persists trained models under <dir>/<fingerprint>/ as a JSON
// metadata sidecar plus a binary weights file. Writes go through a temp file
// and rename so readers never observe a partial checkpoint.
type FileStore struct {
	dir string
	log *logger.Logger
}

var _ forecast.CheckpointStore = (*FileStore)(nil)

func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	if log == nil {
		log = logger.Default()
	}
	return &FileStore{dir: dir, log: log}, nil
}

func (s *FileStore) path(fingerprint, file string) string {
	return filepath.Join(s.dir, fingerprint, file)
}

// Exists reports whether a complete checkpoint is present for the fingerprint.
func (s *FileStore) Exists(fingerprint string) bool {
	if _, err := os.Stat(s.path(fingerprint, metaFile)); err != nil {
		return false
	}
	_, err := os.Stat(s.path(fingerprint, weightsFile))
	return err == nil
}

// Save writes the model's metadata and weights atomically. An existing
// checkpoint for the same fingerprint is replaced.
func (s *FileStore) Save(ctx context.Context, tm *forecast.TrainedModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.dir, tm.Fingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	meta := Meta{
		Fingerprint: tm.Fingerprint,
		Symbol:      tm.Symbol,
		Config:      tm.Config,
		Params:      tm.Params,
		History:     tm.History,
		DataPoints:  tm.DataPoints,
		CreatedAt:   tm.CreatedAt,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: s.path(tm.Fingerprint, metaFile), Err: err}
	}

	var weights bytes.Buffer
	if err := encodeTensors(&weights, tm.Model.Tensors()); err != nil {
		return &IOError{Op: "encode", Path: s.path(tm.Fingerprint, weightsFile), Err: err}
	}

	// Weights first; meta.json last so its presence marks a complete write.
	if err := writeFileAtomic(s.path(tm.Fingerprint, weightsFile), weights.Bytes()); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(tm.Fingerprint, metaFile), metaBytes); err != nil {
		return err
	}

	s.log.Debug("checkpoint saved",
		logger.String("fingerprint", tm.Fingerprint),
		logger.String("symbol", tm.Symbol),
		logger.Int("weight_bytes", weights.Len()))
	return nil
}

// Load reads a checkpoint and rebuilds a ready-to-predict model from it.
// The caller owns the returned model and must Release it.
func (s *FileStore) Load(ctx context.Context, fingerprint string) (*forecast.TrainedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := s.readMeta(fingerprint)
	if err != nil {
		return nil, err
	}

	wf, err := os.Open(s.path(fingerprint, weightsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &IOError{Op: "open", Path: s.path(fingerprint, weightsFile), Err: err}
	}
	defer wf.Close()

	tensors, err := decodeTensors(bufio.NewReader(wf))
	if err != nil {
		return nil, &IOError{Op: "decode", Path: s.path(fingerprint, weightsFile), Err: err}
	}

	model := forecast.NewModel(meta.Config)
	if err := model.LoadTensors(tensors); err != nil {
		model.Release()
		return nil, err
	}

	return &forecast.TrainedModel{
		Model:          model,
		Symbol:         meta.Symbol,
		Fingerprint:    meta.Fingerprint,
		Config:         meta.Config,
		Params:         meta.Params,
		History:        forecast.TrainingHistory{},
		DataPoints:     meta.DataPoints,
		CreatedAt:      meta.CreatedAt,
		FromCheckpoint: true,
		Saved:          true,
	}, nil
}

// Delete removes a checkpoint. Deleting a missing checkpoint returns
// ErrNotFound.
func (s *FileStore) Delete(fingerprint string) error {
	dir := filepath.Join(s.dir, fingerprint)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return &IOError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

// List returns metadata for every readable checkpoint, newest first.
// Corrupt entries are skipped with a warning rather than failing the listing.
func (s *FileStore) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &IOError{Op: "readdir", Path: s.dir, Err: err}
	}

	metas := make([]Meta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readMeta(e.Name())
		if err != nil {
			s.log.Warn("skipping unreadable checkpoint",
				logger.String("fingerprint", e.Name()),
				logger.Error(err))
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Get returns the metadata sidecar for a single checkpoint.
func (s *FileStore) Get(fingerprint string) (Meta, error) {
	return s.readMeta(fingerprint)
}

func (s *FileStore) readMeta(fingerprint string) (Meta, error) {
	b, err := os.ReadFile(s.path(fingerprint, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, ErrNotFound
		}
		return Meta{}, &IOError{Op: "read", Path: s.path(fingerprint, metaFile), Err: err}
	}
	var meta Meta
	if err := json.Unmarshal(b, &meta); err != nil {
		return Meta{}, &IOError{Op: "decode", Path: s.path(fingerprint, metaFile), Err: err}
	}
	return meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
