//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StockCast/pkg/config"
	"StockCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Persistence and messaging
		ProvideCheckpointStore,
		ProvideCatalog,
		ProvideRunStore,
		ProvideProgressPublisher,

		// Pipeline
		ProvideTrainer,
		ProvideController,

		// HTTP surface
		ProvideHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
