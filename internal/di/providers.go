package di

import (
	"context"
	"fmt"
	"time"

	"StockCast/internal/checkpoint"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/forecast"
	"StockCast/internal/handler/api"
	"StockCast/internal/jobs"
	internalrepo "StockCast/internal/repository"
	pkgcache "StockCast/pkg/cache"
	pkgch "StockCast/pkg/clickhouse"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	applogger "StockCast/pkg/logger"
	"StockCast/pkg/metrics"
	"StockCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse when enabled; a nil client
// means run records are not persisted.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(pkgch.Config{
		Host:        cfg.ClickHouse.Host,
		Port:        cfg.ClickHouse.Port,
		Database:    cfg.ClickHouse.Database,
		User:        cfg.ClickHouse.User,
		Password:    cfg.ClickHouse.Password,
		DialTimeout: cfg.ClickHouse.DialTimeout,
		ReadTimeout: cfg.ClickHouse.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRunStore creates the training run store on the ClickHouse client.
func ProvideRunStore(client *pkgch.Client) (domrepo.RunStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseRunStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("run store schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates the Kafka producer when enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchTimeout: cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideProgressPublisher wraps the producer as a progress publisher.
func ProvideProgressPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ProgressPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaProgressPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCache builds the cache: layered memory+Redis when Redis is enabled,
// plain in-process memory otherwise.
func ProvideCache(cfg *config.Config, log *applogger.Logger) pkgcache.Store {
	if cfg.Redis.Enabled {
		redis, err := pkgcache.NewRedis(pkgcache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err == nil {
			return pkgcache.NewLayered(redis, 1024)
		}
		log.Warn("redis unavailable, falling back to memory cache", applogger.Error(err))
	}
	return pkgcache.NewMemory(1024)
}

// ProvideCheckpointStore creates the on-disk checkpoint store.
func ProvideCheckpointStore(cfg *config.Config, log *applogger.Logger) (*checkpoint.FileStore, error) {
	return checkpoint.NewFileStore(cfg.Checkpoints.Dir, log)
}

// ProvideCatalog creates the cached checkpoint catalog.
func ProvideCatalog(store *checkpoint.FileStore, cache pkgcache.Store,
	cfg *config.Config, log *applogger.Logger) *checkpoint.Catalog {
	return checkpoint.NewCatalog(store, cache, cfg.Checkpoints.CacheTTL, log)
}

// ProvideTrainer creates the trainer over the checkpoint store.
func ProvideTrainer(store *checkpoint.FileStore, cfg *config.Config, log *applogger.Logger) *forecast.Trainer {
	return forecast.NewTrainer(store, cfg.Checkpoints.Reuse, log)
}

// ProvideController creates the job controller.
func ProvideController(cfg *config.Config, trainer *forecast.Trainer,
	catalog *checkpoint.Catalog, pub domrepo.ProgressPublisher,
	runs domrepo.RunStore, m domrepo.Metrics, log *applogger.Logger) *jobs.Controller {
	return jobs.NewController(jobs.Config{
		MaxConcurrent: cfg.Training.MaxConcurrentJobs,
		GracePeriod:   cfg.Training.JobGracePeriod,
		Training: forecast.ModelConfig{
			HiddenUnits:        cfg.Training.HiddenUnits,
			Layers:             cfg.Training.Layers,
			Dropout:            cfg.Training.Dropout,
			LearningRate:       cfg.Training.LearningRate,
			ValidationSplit:    cfg.Training.ValidationSplit,
			MinTrainingSamples: cfg.Training.MinSamples,
			Seed:               cfg.Training.Seed,
		},
	}, trainer, catalog, pub, runs, m, log)
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(log *applogger.Logger, ctrl *jobs.Controller,
	store *checkpoint.FileStore, catalog *checkpoint.Catalog, runs domrepo.RunStore) xhttp.Handler {
	return api.NewForecastHandler(log, ctrl, store, catalog, runs)
}

// ProvideHTTPServer creates the HTTP server with routes registered.
func ProvideHTTPServer(cfg *config.Config, handler xhttp.Handler, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	return xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log),
	)
}

// ProvideApp assembles the application.
func ProvideApp(cfg *config.Config, log *applogger.Logger, ctrl *jobs.Controller,
	httpServer *xhttp.Server, chClient *pkgch.Client, cache pkgcache.Store,
	producer *pkgkafka.Producer) *server.App {
	app := server.New(cfg, log, ctrl, httpServer, chClient, cache)
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	return app
}
