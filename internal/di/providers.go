package di

import (
	"context"
	"fmt"
	"time"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/handler/api"
	mid "AlphaNebula/internal/middleware"
	internalrepo "AlphaNebula/internal/repository"
	"AlphaNebula/internal/service/blocking"
	"AlphaNebula/internal/service/cache"
	"AlphaNebula/internal/service/embedding"
	"AlphaNebula/internal/service/mentionfeed"
	"AlphaNebula/internal/service/ratelimit"
	"AlphaNebula/internal/service/rerank"
	"AlphaNebula/internal/services/signals"
	"AlphaNebula/internal/usecase"
	pkgcache "AlphaNebula/pkg/cache"
	pkgch "AlphaNebula/pkg/clickhouse"
	"AlphaNebula/pkg/config"
	"AlphaNebula/pkg/database"
	xhttp "AlphaNebula/pkg/http"
	pkgkafka "AlphaNebula/pkg/kafka"
	applogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/metrics"
	"AlphaNebula/pkg/queue"
	"AlphaNebula/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: time.RFC3339Nano,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideDatabase opens the relational store holding aliases, the review queue and,
// for the sql backend, signals.
func ProvideDatabase(cfg *config.Config) (*database.Client, func(), error) {
	dialect, err := database.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, nil, err
	}
	client, err := database.NewClient(
		database.WithDialect(dialect),
		database.WithDSN(cfg.Store.DSN),
		database.WithMaxConnections(cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns),
		database.WithConnMaxLifetime(cfg.Store.ConnMaxLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSourcePrecedence parses the configured source ranking.
func ProvideSourcePrecedence(cfg *config.Config) (models.SourcePrecedence, error) {
	p, err := models.ParseSourcePrecedence(cfg.Resolver.SourcePrecedence)
	if err != nil {
		return nil, fmt.Errorf("resolver.source_precedence: %w", err)
	}
	return p, nil
}

// ProvideCandidateStore creates the alias store and review queue and applies their schema.
func ProvideCandidateStore(client *database.Client, precedence models.SourcePrecedence) (*internalrepo.SQLCandidateStore, error) {
	store := internalrepo.NewSQLCandidateStore(client, internalrepo.WithPrecedence(precedence))
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("candidate store schema: %w", err)
	}
	return store, nil
}

// ProvideSignalStore selects the signal event log backend.
func ProvideSignalStore(cfg *config.Config, client *database.Client, l *applogger.Logger) (repository.SignalStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if cfg.Signals.Backend != "clickhouse" {
		store := internalrepo.NewSQLSignalStore(client)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("signal store schema: %w", err)
		}
		return store, func() {}, nil
	}

	ch, err := pkgch.Open(ctx, pkgch.Config{
		Host:             cfg.ClickHouse.Host,
		Port:             cfg.ClickHouse.Port,
		Database:         cfg.ClickHouse.Database,
		User:             cfg.ClickHouse.User,
		Password:         cfg.ClickHouse.Password,
		HTTP:             cfg.ClickHouse.UseHTTP,
		DialTimeout:      cfg.ClickHouse.DialTimeout,
		ReadTimeout:      cfg.ClickHouse.ReadTimeout,
		MaxExecutionTime: cfg.ClickHouse.MaxExecutionTime,
		AsyncInsert:      cfg.ClickHouse.AsyncInsert,
		WaitForAsync:     cfg.ClickHouse.WaitForAsync,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	store := internalrepo.NewCHSignalStore(ch, l)
	if err := store.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, func() { _ = ch.Close() }, nil
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend != "memory" || cfg.Jobs.Backend == "redis"
}

// ProvideRedis connects to Redis when the cache or job queue needs it, nil otherwise.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !usesRedis(cfg) {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(context.Background(), pkgcache.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.PoolSize / 2,
		Prefix:       cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache selects the resolution cache backend.
func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	switch cfg.Cache.Backend {
	case "redis":
		return rc, func() {}
	case "layered":
		lc := pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			pkgcache.WithLayeredL1TTL(cfg.Cache.L1TTL),
		)
		return lc, func() { _ = lc.Close() }
	default:
		mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		return mc, func() { _ = mc.Close() }
	}
}

// ProvideLoader wraps the cache with read-through loading. Shared backends also
// take a distributed lock so replicas do not compute the same miss.
func ProvideLoader(cfg *config.Config, store pkgcache.Service, m repository.Metrics, l *applogger.Logger) *cache.Loader {
	opts := []cache.Option{cache.WithTTL(cfg.Cache.TTL), cache.WithMetrics(m)}
	if cfg.Cache.Backend != "memory" {
		opts = append(opts, cache.WithDistributedLock(10*time.Second, 50*time.Millisecond))
	}
	return cache.NewLoader(store, l, opts...)
}

// ProvideEmbedder selects the embedding provider.
func ProvideEmbedder(cfg *config.Config) service.Embedder {
	if cfg.Embedding.Provider == "ollama" {
		return embedding.NewOllamaEmbedder(
			embedding.WithOllamaURL(cfg.Embedding.OllamaURL),
			embedding.WithOllamaModel(cfg.Embedding.Model, cfg.Embedding.Dimensions),
			embedding.WithOllamaTimeout(cfg.Embedding.Timeout),
			embedding.WithOllamaRateLimit(cfg.Embedding.RPS, cfg.Embedding.Burst),
		)
	}
	return embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
}

func ProvideBlockingIndex(cfg *config.Config) service.BlockingIndex {
	return blocking.New(blocking.WithMinScore(cfg.Resolver.BlockingMinScore))
}

func ProvideReranker(cfg *config.Config, e service.Embedder, precedence models.SourcePrecedence, l *applogger.Logger) service.Reranker {
	return rerank.New(e, l,
		rerank.WithPrecedence(precedence),
		rerank.WithBatchSize(cfg.Embedding.BatchSize),
	)
}

// ProvideResolver creates the entity resolution use case.
func ProvideResolver(
	cfg *config.Config,
	store *internalrepo.SQLCandidateStore,
	index service.BlockingIndex,
	reranker service.Reranker,
	loader *cache.Loader,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.EntityResolver {
	return usecase.NewEntityResolver(store, store, index, reranker, loader, m, l, usecase.ResolverConfig{
		AutoLinkThreshold: cfg.Resolver.AutoLinkThreshold,
		LexicalThreshold:  cfg.Resolver.LexicalLinkThreshold,
		BlockingK:         cfg.Resolver.BlockingK,
		FallbackK:         cfg.Resolver.FallbackK,
		ReviewCandidates:  cfg.Resolver.ReviewCandidates,
	})
}

// JobQueue is the background queue the review sweep runs on.
type JobQueue interface {
	queue.Publisher
	RegisterJob(job queue.Job)
	Stop(ctx context.Context) error
}

// ProvideJobQueue selects an in-process or Redis-backed queue.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) JobQueue {
	qc := queue.Config{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		RetryLimit: cfg.Jobs.RetryLimit,
		RetryDelay: cfg.Jobs.RetryDelay,
	}
	if cfg.Jobs.Backend == "redis" && rc != nil {
		return queue.NewRedisQueue(l, qc, rc.Client(), queue.WithKeyPrefix(cfg.Cache.Prefix+":queue"))
	}
	return queue.NewLocalQueue(l, qc)
}

// ProvideCuration creates the curation use case and hooks review sweeps onto the job queue.
func ProvideCuration(
	store *internalrepo.SQLCandidateStore,
	index service.BlockingIndex,
	reranker service.Reranker,
	loader *cache.Loader,
	resolver *usecase.EntityResolver,
	jobs JobQueue,
	l *applogger.Logger,
) *usecase.AliasCuration {
	c := usecase.NewAliasCuration(store, store, index, reranker, loader, l)
	jobs.RegisterJob(usecase.NewReviewSweepJob(resolver, store, c, l))
	c.SetSweeper(jobs)
	return c
}

// ProvideEngineConfig maps the engine section onto the use case config.
func ProvideEngineConfig(cfg *config.Config) usecase.EngineConfig {
	ec := usecase.DefaultEngineConfig()
	ec.Anomaly = signals.AnomalyConfig{
		Window:     cfg.Engine.Window,
		MinHistory: cfg.Engine.MinHistory,
		Threshold:  cfg.Engine.ZThreshold,
	}
	ec.Causality.Alpha = cfg.Engine.Significance
	ec.Causality.MaxDiff = cfg.Engine.MaxDifferencing
	ec.Causality.ADFLags = cfg.Engine.ADFLags
	ec.QueryLookback = cfg.Engine.QueryLookback
	ec.CausalityLookback = cfg.Engine.CausalityLookback
	ec.MaxLag = cfg.Engine.MaxLag
	ec.Frequency = models.Frequency(cfg.Engine.DefaultFrequency)
	return ec
}

func ProvideSignalEngine(store repository.SignalStore, l *applogger.Logger, ec usecase.EngineConfig) *usecase.SignalEngine {
	return usecase.NewSignalEngine(store, l, ec)
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
// The alert publisher owns it and closes it on shutdown.
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
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		Linger:       cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertPublisher sends anomaly alerts to Kafka, or to the log when Kafka is off.
func ProvideAlertPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) repository.AlertPublisher {
	if producer == nil {
		return internalrepo.NewLogAlertPublisher(l)
	}
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic, l)
}

func ProvideSignalIngestor(
	store repository.SignalStore,
	engine *usecase.SignalEngine,
	alerts repository.AlertPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalIngestor {
	return usecase.NewSignalIngestor(store, engine, alerts, m, l)
}

func ProvideMentionProcessor(resolver *usecase.EntityResolver, ingestor *usecase.SignalIngestor, l *applogger.Logger) *usecase.MentionProcessor {
	return usecase.NewMentionProcessor(resolver, ingestor, l)
}

// ProvideKafkaConsumer creates a Kafka consumer, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Log: l.Component("kafka.hook")})
	return consumer, nil
}

// ProvideKafkaHandlers builds the topic handlers for raw signals and mentions.
func ProvideKafkaHandlers(
	cfg *config.Config,
	ingestor *usecase.SignalIngestor,
	processor *usecase.MentionProcessor,
	m repository.Metrics,
) []pkgkafka.MessageHandler {
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalsTopic, ingestor, m),
		usecase.NewKafkaMentionsHandler(cfg.Kafka.MentionTopic, processor, m),
	}
}

// ProvideFrameRegistry maps scraper sources onto their frame formats.
func ProvideFrameRegistry() *mentionfeed.Registry {
	r := mentionfeed.NewRegistry()
	r.Register("shipping", mentionfeed.DelimitedProducer("shipping", models.SignalShippingVolume, models.EntitySubsidiary))
	r.Register("hiring", mentionfeed.DelimitedProducer("hiring", models.SignalHiringSpike, models.EntityTypeAlias))
	r.Register("app_store", mentionfeed.DelimitedProducer("app_store", models.SignalAppRank, models.EntityTypeAlias))
	return r
}

// ProvideMentionPipeline builds the throttled, buffered path from the feed to the resolver.
func ProvideMentionPipeline(
	cfg *config.Config,
	processor *usecase.MentionProcessor,
	registry *mentionfeed.Registry,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.MentionPipeline {
	proc := mid.ProcFunc(func(ctx context.Context, mention models.RawMention) error {
		_, err := processor.Process(ctx, mention)
		return err
	})
	burst := int(cfg.MentionFeed.PerSourceRPS)
	if burst < 1 {
		burst = 1
	}
	return mid.NewMentionPipeline(proc, m,
		mid.WithBufferSize(cfg.MentionFeed.BufferSize),
		mid.WithThrottle(ratelimit.New(cfg.MentionFeed.PerSourceRPS, burst)),
		mid.WithParser(registry),
		mid.WithLogger(l),
	)
}

// ProvideMentionStream connects to the scraper gateway, nil when the feed is disabled.
func ProvideMentionStream(cfg *config.Config, l *applogger.Logger) repository.MentionStream {
	if !cfg.MentionFeed.Enabled {
		return nil
	}
	return mentionfeed.New(cfg.MentionFeed.URL, l,
		mentionfeed.WithToken(cfg.MentionFeed.Token),
		mentionfeed.WithSources(cfg.MentionFeed.Sources...),
		mentionfeed.WithReconnectDelay(cfg.MentionFeed.ReconnectDelay),
		mentionfeed.WithPingInterval(cfg.MentionFeed.PingInterval),
		mentionfeed.WithBuffer(cfg.MentionFeed.BufferSize),
	)
}

// ProvideResolveLimiter limits POST /resolve per client, nil when disabled.
func ProvideResolveLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.ResolveRPS, cfg.RateLimit.Burst)
}

// ProvideHealthChecks lists the dependencies /readyz probes.
func ProvideHealthChecks(store *internalrepo.SQLCandidateStore, signalsStore repository.SignalStore, rc *pkgcache.RedisCache) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"aliases": store.Health,
		"signals": signalsStore.Health,
	}
	if rc != nil {
		checks["redis"] = rc.Ping
	}
	return checks
}

// ProvideHandlers assembles every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	resolver *usecase.EntityResolver,
	limiter *ratelimit.Limiter,
	curation *usecase.AliasCuration,
	engine *usecase.SignalEngine,
	ingestor *usecase.SignalIngestor,
	checks map[string]api.HealthCheck,
) xhttp.Handlers {
	return xhttp.Handlers{
		api.NewHealthHandler(checks),
		api.NewResolveHandler(l, resolver, limiter),
		api.NewCurationHandler(l, curation),
		api.NewSignalsHandler(l, engine, ingestor, cfg.Engine.FreshnessTTL),
	}
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, handlers xhttp.Handlers, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithLogger(l),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSOrigins...))
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetricsPath(metricsPath))
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp wires background components into the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	curation *usecase.AliasCuration,
	jobs JobQueue,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	pipeline *mid.MentionPipeline,
	stream repository.MentionStream,
	alerts repository.AlertPublisher,
) *server.App {
	opts := []server.Option{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithBootstrap(func(ctx context.Context) error {
			_, err := curation.Bootstrap(ctx)
			return err
		}),
		server.WithWorker("jobs", jobWorker(jobs)),
		server.WithCloser("alerts", alerts.Close),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, handlers...))
	}
	if stream != nil {
		opts = append(opts, server.WithWorker("mention_feed", feedWorker(pipeline, stream, l)))
	}
	return server.New(l, httpServer, opts...)
}

func jobWorker(jobs JobQueue) server.Worker {
	w := server.WorkerFuncs{StopFn: jobs.Stop}
	if s, ok := jobs.(interface{ Start(context.Context) error }); ok {
		w.StartFn = s.Start
	}
	return w
}

// feedWorker runs the mention pipeline and pumps the gateway stream into it.
func feedWorker(pipeline *mid.MentionPipeline, stream repository.MentionStream, l *applogger.Logger) server.Worker {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	log := l.Component("mention_feed")
	return server.WorkerFuncs{
		StartFn: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.WithoutCancel(ctx))
			cancel = c
			done = make(chan struct{})
			pipeline.Start(runCtx)
			go func() {
				defer close(done)
				if err := pipeline.Run(runCtx, stream); err != nil {
					log.Error("mention feed stopped", applogger.Error(err))
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			pipeline.Stop()
			return nil
		},
	}
}
