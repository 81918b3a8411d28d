//go:build wireinject
// +build wireinject

package di

import (
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,

		// Observability
		ProvideSnapshotHistory,
		ProvideSnapshotCache,
		ProvideTracker,
		ProvideEventBus,

		// Pipeline stages
		ProvideSmoother,
		ProvideScorer,
		ProvideStateStore,
		ProvideDispatcher,
		ProvideRedeliverQueue,
		ProvideDetectors,
		ProvideQueues,
		ProvideEvaluator,
		ProvideFetcher,
		ProvideBatchRunner,
		ProvidePushRunner,
		ProvidePruner,

		// HTTP surface and application
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
