package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	jobsStarted      *prometheus.CounterVec
	jobsFinished     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	activeJobs       prometheus.Gauge
	epochDuration    *prometheus.HistogramVec
	trainingDuration *prometheus.HistogramVec
	lastLoss         *prometheus.GaugeVec
	lastValLoss      *prometheus.GaugeVec
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		jobsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_jobs_started_total",
				Help: "Training jobs started",
			},
			[]string{"symbol"},
		),
		jobsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_jobs_finished_total",
				Help: "Training jobs finished, by terminal status",
			},
			[]string{"symbol", "status"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"kind"},
		),
		activeJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockcast_active_jobs",
				Help: "Jobs currently pending or training",
			},
		),
		epochDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_epoch_duration_seconds",
				Help:    "Wall time per training epoch",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"symbol"},
		),
		trainingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_training_duration_seconds",
				Help:    "Wall time per training job",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"symbol"},
		),
		lastLoss: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockcast_last_training_loss",
				Help: "Final training loss of the most recent completed run",
			},
			[]string{"symbol"},
		),
		lastValLoss: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockcast_last_validation_loss",
				Help: "Final validation loss of the most recent completed run",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordJobStarted(symbol string) {
	r.jobsStarted.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordJobFinished(symbol, status string) {
	r.jobsFinished.WithLabelValues(symbol, status).Inc()
}

func (r *Recorder) RecordEpoch(symbol string, seconds float64) {
	r.epochDuration.WithLabelValues(symbol).Observe(seconds)
}

func (r *Recorder) RecordTrainingDuration(symbol string, seconds float64) {
	r.trainingDuration.WithLabelValues(symbol).Observe(seconds)
}

func (r *Recorder) RecordFinalLoss(symbol string, loss, valLoss float64) {
	r.lastLoss.WithLabelValues(symbol).Set(loss)
	r.lastValLoss.WithLabelValues(symbol).Set(valLoss)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetActiveJobs(n int) {
	r.activeJobs.Set(float64(n))
}
