package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"StockCast/internal/checkpoint"
	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	"StockCast/internal/forecast"
	"StockCast/pkg/logger"
)

// Progress percentages for the stages the controller adds on top of
// training: autoregressive prediction and completion.
const (
	pctPredictLow  = 95
	pctPredictHigh = 98
)

const defaultGracePeriod = 10 * time.Minute

// Config tunes the controller.
type Config struct {
	// MaxConcurrent bounds simultaneously training jobs. Jobs beyond the
	// bound wait in pending state.
	MaxConcurrent int
	// GracePeriod is how long terminal jobs stay queryable before the
	// janitor prunes them.
	GracePeriod time.Duration
	// Training holds deployment-level hyperparameter defaults merged into
	// every request.
	Training forecast.ModelConfig
}

// Controller owns the training job table. It enforces one in-flight job per
// model fingerprint, bounds global concurrency, fans progress events out to
// subscribers and an optional broker, and records finished runs.
type Controller struct {
	cfg     Config
	trainer *forecast.Trainer
	catalog *checkpoint.Catalog
	pub     repository.ProgressPublisher
	runs    repository.RunStore
	metrics repository.Metrics
	log     *logger.Logger

	root     context.Context
	shutdown context.CancelFunc
	sem      chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	byFP   map[string]*Job
	byID   map[string]*Job
	subs   map[chan *models.ProgressEvent]struct{}
	closed bool
}

// NewController builds a controller. Publisher, run store and metrics are
// optional; nil disables them.
func NewController(cfg Config, trainer *forecast.Trainer, catalog *checkpoint.Catalog,
	pub repository.ProgressPublisher, runs repository.RunStore,
	metrics repository.Metrics, log *logger.Logger) *Controller {

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if log == nil {
		log = logger.Default()
	}

	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		trainer:  trainer,
		catalog:  catalog,
		pub:      pub,
		runs:     runs,
		metrics:  metrics,
		log:      log,
		root:     root,
		shutdown: cancel,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		byFP:     make(map[string]*Job),
		byID:     make(map[string]*Job),
		subs:     make(map[chan *models.ProgressEvent]struct{}),
	}

	c.wg.Add(1)
	go c.janitor()
	return c
}

// buildConfig merges request knobs with deployment defaults.
func (c *Controller) buildConfig(req *models.AnalyzeRequest) forecast.ModelConfig {
	cfg := c.cfg.Training
	cfg.SequenceLength = req.SequenceLength
	cfg.Epochs = req.Epochs
	cfg.BatchSize = req.BatchSize
	cfg.DaysToPredict = req.DaysToPredict
	return cfg.WithDefaults()
}

// Start validates the request and launches a training job. It returns
// AlreadyRunningError when a non-terminal job exists for the same
// fingerprint, and input validation errors before any job is created.
func (c *Controller) Start(req *models.AnalyzeRequest) (*Job, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.StockData.Symbol))
	if symbol == "" {
		return nil, &forecast.InvalidInputError{Reason: "symbol is required"}
	}
	if err := forecast.ValidateSeries(req.StockData.TimeSeries); err != nil {
		return nil, err
	}

	cfg := c.buildConfig(req)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fp := forecast.Fingerprint(symbol, cfg)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("controller is shut down")
	}
	if existing, ok := c.byFP[fp]; ok && !existing.Status().Terminal() {
		c.mu.Unlock()
		return nil, &AlreadyRunningError{Fingerprint: fp, JobID: existing.ID}
	}

	ctx, cancel := context.WithCancel(c.root)
	job := &Job{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Symbol:      symbol,
		CreatedAt:   time.Now().UTC(),
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      StatusPending,
	}
	c.byFP[fp] = job
	c.byID[job.ID] = job
	c.mu.Unlock()

	c.log.Info("job accepted",
		logger.String("job_id", job.ID),
		logger.String("symbol", symbol),
		logger.String("fingerprint", fp))

	c.wg.Add(1)
	go c.run(ctx, job, req, cfg)
	return job, nil
}

func (c *Controller) run(ctx context.Context, job *Job, req *models.AnalyzeRequest, cfg forecast.ModelConfig) {
	defer c.wg.Done()
	defer job.cancel()

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		c.finishJob(job, StatusCancelled, nil, nil, cfg, time.Now())
		return
	}

	started := time.Now()
	if c.metrics != nil {
		c.metrics.RecordJobStarted(job.Symbol)
		c.metrics.SetActiveJobs(c.activeCount())
	}

	job.setProgress(StatusTraining, 0, "starting")
	c.emit(job, "status", models.ProgressData{Stage: "started", Percent: 0})

	closes := req.StockData.Closes()
	lastEpochEnd := started

	tm, err := c.trainer.Train(ctx, job.Symbol, closes, cfg, func(p forecast.Progress) {
		job.setProgress(StatusTraining, p.Percent, p.Message)
		c.emit(job, "progress", models.ProgressData{
			Stage:       string(p.Stage),
			Percent:     p.Percent,
			Message:     p.Message,
			Epoch:       p.Epoch,
			TotalEpochs: p.TotalEpochs,
			Loss:        p.Loss,
			ValLoss:     p.ValLoss,
		})
		if p.Stage == forecast.StageTraining && c.metrics != nil {
			now := time.Now()
			c.metrics.RecordEpoch(job.Symbol, now.Sub(lastEpochEnd).Seconds())
			lastEpochEnd = now
		}
	})
	if err != nil {
		status := StatusError
		if errors.Is(err, context.Canceled) {
			status = StatusCancelled
			err = nil
		}
		c.finishJob(job, status, nil, err, cfg, started)
		return
	}

	preds, err := c.predict(ctx, job, tm, closes, req.StockData.LastDate(), cfg.DaysToPredict)
	modelData := c.modelData(tm)
	tm.Release()
	if err != nil {
		status := StatusError
		if errors.Is(err, context.Canceled) {
			status = StatusCancelled
			err = nil
		}
		c.finishJob(job, status, nil, err, cfg, started)
		return
	}

	if tm.Saved && c.catalog != nil {
		c.catalog.Invalidate(c.root)
	}
	c.finishJob(job, StatusComplete, &Result{ModelData: modelData, Predictions: preds}, nil, cfg, started)
}

func (c *Controller) predict(ctx context.Context, job *Job, tm *forecast.TrainedModel,
	closes []float64, lastDate time.Time, horizon int) ([]models.PredictionPoint, error) {

	job.setProgress(StatusTraining, pctPredictLow, "predicting")
	c.emit(job, "progress", models.ProgressData{
		Stage:   string(forecast.StagePredicting),
		Percent: pctPredictLow,
	})

	preds, err := forecast.Predict(ctx, tm, closes, lastDate, horizon)
	if err != nil {
		return nil, err
	}

	c.emit(job, "progress", models.ProgressData{
		Stage:   string(forecast.StagePredicting),
		Percent: pctPredictHigh,
	})
	return preds, nil
}

func (c *Controller) modelData(tm *forecast.TrainedModel) models.ModelData {
	return models.ModelData{
		Fingerprint:    tm.Fingerprint,
		Symbol:         tm.Symbol,
		Min:            tm.Params.Min,
		Range:          tm.Params.Range,
		DataPoints:     tm.DataPoints,
		Loss:           tm.History.Loss,
		ValLoss:        tm.History.ValLoss,
		FromCheckpoint: tm.FromCheckpoint,
		CreatedAt:      tm.CreatedAt,
	}
}

func (c *Controller) finishJob(job *Job, status Status, result *Result, err error,
	cfg forecast.ModelConfig, started time.Time) {

	message := ""
	if err != nil {
		message = err.Error()
	}
	job.finish(status, result, err)

	pct := job.View().Progress
	data := models.ProgressData{Stage: string(forecast.StageDone), Percent: pct, Message: message}
	switch status {
	case StatusComplete:
		data.Stage = string(forecast.StageDone)
		data.Percent = 100
	case StatusCancelled:
		data.Stage = "cancelled"
	case StatusError:
		data.Stage = "error"
	}
	c.emit(job, "status", data)

	if c.metrics != nil {
		c.metrics.RecordJobFinished(job.Symbol, string(status))
		c.metrics.RecordTrainingDuration(job.Symbol, time.Since(started).Seconds())
		c.metrics.SetActiveJobs(c.activeCount())
		if status == StatusError {
			c.metrics.RecordError("training")
		}
		if result != nil {
			if n := len(result.ModelData.Loss); n > 0 && len(result.ModelData.ValLoss) == n {
				c.metrics.RecordFinalLoss(job.Symbol,
					result.ModelData.Loss[n-1], result.ModelData.ValLoss[n-1])
			}
		}
	}

	c.recordRun(job, status, result, cfg, started)

	c.log.Info("job finished",
		logger.String("job_id", job.ID),
		logger.String("symbol", job.Symbol),
		logger.String("status", string(status)),
		logger.Duration("elapsed", time.Since(started)),
		logger.Error(err))
}

func (c *Controller) recordRun(job *Job, status Status, result *Result,
	cfg forecast.ModelConfig, started time.Time) {
	if c.runs == nil {
		return
	}

	run := &models.TrainingRun{
		Fingerprint: job.Fingerprint,
		Symbol:      job.Symbol,
		Status:      string(status),
		Epochs:      cfg.Epochs,
		DurationMs:  time.Since(started).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if result != nil {
		run.DataPoints = result.ModelData.DataPoints
		if n := len(result.ModelData.Loss); n > 0 {
			run.FinalLoss = result.ModelData.Loss[n-1]
		}
		if n := len(result.ModelData.ValLoss); n > 0 {
			run.FinalValLoss = result.ModelData.ValLoss[n-1]
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.runs.Record(ctx, run); err != nil {
		c.log.Warn("training run not recorded",
			logger.String("job_id", job.ID), logger.Error(err))
	}
}

// emit delivers an event to every subscriber and the broker publisher.
// Subscriber channels are buffered; a full channel drops the event rather
// than blocking the training loop.
func (c *Controller) emit(job *Job, eventType string, data models.ProgressData) {
	event := &models.ProgressEvent{Type: eventType, ModelID: job.Fingerprint, Data: data}

	c.mu.Lock()
	for ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
	c.mu.Unlock()

	if c.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.pub.Publish(ctx, event); err != nil {
			c.log.Warn("progress event not published", logger.Error(err))
		}
		cancel()
	}
}

// Subscribe registers a progress event listener. The returned cancel func
// must be called to release the subscription.
func (c *Controller) Subscribe() (<-chan *models.ProgressEvent, func()) {
	ch := make(chan *models.ProgressEvent, 64)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (c *Controller) Wait(ctx context.Context, job *Job) (*Result, error) {
	select {
	case <-job.Done():
		return job.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of a job. Cancelling a finished or unknown
// job is a no-op; the boolean reports whether the job was found.
func (c *Controller) Cancel(id string) bool {
	c.mu.Lock()
	job, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	job.cancel()
	return true
}

// Get returns a job by id.
func (c *Controller) Get(id string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.byID[id]
	return job, ok
}

// ByFingerprint returns the current job for a model fingerprint.
func (c *Controller) ByFingerprint(fp string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.byFP[fp]
	return job, ok
}

// List snapshots all known jobs, including recently finished ones.
func (c *Controller) List() []models.JobView {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.byID))
	for _, job := range c.byID {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()

	views := make([]models.JobView, len(jobs))
	for i, job := range jobs {
		views[i] = job.View()
	}
	return views
}

func (c *Controller) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, job := range c.byID {
		if !job.Status().Terminal() {
			n++
		}
	}
	return n
}

// janitor prunes terminal jobs after the grace period so the job table does
// not grow without bound.
func (c *Controller) janitor() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.root.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.cfg.GracePeriod)
			c.mu.Lock()
			for id, job := range c.byID {
				if doneAt, terminal := job.terminalSince(); terminal && doneAt.Before(cutoff) {
					delete(c.byID, id)
					if c.byFP[job.Fingerprint] == job {
						delete(c.byFP, job.Fingerprint)
					}
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close cancels all running jobs and waits for workers to exit.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.shutdown()
	c.wg.Wait()
	return nil
}
