package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"StockCast/internal/jobs"
	pkgcache "StockCast/pkg/cache"
	pkgch "StockCast/pkg/clickhouse"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	applogger "StockCast/pkg/logger"
)

// App owns the application lifecycle: the HTTP server, the job controller
// and the infrastructure clients behind it.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	ctrl       *jobs.Controller
	httpServer *xhttp.Server
	chClient   *pkgch.Client
	cache      pkgcache.Store
	closers    []func() error
}

// New assembles the app. Handler routes were registered during server
// construction; closers run in order on shutdown.
func New(cfg *config.Config, log *applogger.Logger, ctrl *jobs.Controller,
	httpServer *xhttp.Server, chClient *pkgch.Client, cache pkgcache.Store) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		ctrl:       ctrl,
		httpServer: httpServer,
		chClient:   chClient,
		cache:      cache,
	}
}

// AddCloser registers an extra resource to close on shutdown.
func (a *App) AddCloser(name string, close func() error) {
	a.closers = append(a.closers, func() error {
		if err := close(); err != nil {
			a.log.Warn("close failed", applogger.String("resource", name), applogger.Error(err))
		}
		return nil
	})
}

// Run starts serving and blocks until an interrupt or termination signal.
func (a *App) Run() error {
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("ready",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Int("max_concurrent_jobs", a.cfg.Training.MaxConcurrentJobs))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then tear down the workers behind them.
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.ctrl.Close(); err != nil {
		a.log.Warn("controller close error", applogger.Error(err))
	}

	for _, close := range a.closers {
		_ = close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
