//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/carolinacraus/market-state-api/internal/usecase"
	"github.com/carolinacraus/market-state-api/pkg/config"
	"github.com/carolinacraus/market-state-api/pkg/server"
)

var pipelineSet = wire.NewSet(
	// Observability
	ProvideLogger,
	ProvideMetrics,

	// Infrastructure clients
	ProvideClickHouseClient,
	ProvideCache,

	// Repositories and collaborators
	ProvideLabelSink,
	ProvidePublisher,
	ProvideBreadthSource,
	ProvideUploader,
	ProvideMarketSource,
	ProvideRunLock,

	// Domain services
	ProvideEngine,
	ProvideVariants,

	// Use cases
	ProvidePipeline,
)

// InitializeApp wires the HTTP service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		pipelineSet,
		ProvideRegimeReader,
		ProvideHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializePipeline wires the updater for one-shot CLI runs.
func InitializePipeline(cfg *config.Config) (*usecase.Pipeline, func(), error) {
	wire.Build(pipelineSet)
	return nil, nil, nil
}
