//go:build wireinject
// +build wireinject

package di

import (
	"AlphaNebula/pkg/config"
	"AlphaNebula/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideDatabase,
		ProvideRedis,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideMentionStream,

		// Repositories
		ProvideSourcePrecedence,
		ProvideCandidateStore,
		ProvideSignalStore,
		ProvideAlertPublisher,

		// Resolution
		ProvideLoader,
		ProvideEmbedder,
		ProvideBlockingIndex,
		ProvideReranker,
		ProvideResolver,
		ProvideJobQueue,
		ProvideCuration,

		// Signals
		ProvideEngineConfig,
		ProvideSignalEngine,
		ProvideSignalIngestor,
		ProvideMentionProcessor,
		ProvideKafkaHandlers,
		ProvideFrameRegistry,
		ProvideMentionPipeline,

		// HTTP
		ProvideResolveLimiter,
		ProvideHealthChecks,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
