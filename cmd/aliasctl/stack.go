package main

import (
	"context"
	"fmt"

	"AlphaNebula/internal/di"
	"AlphaNebula/internal/repository"
	"AlphaNebula/internal/usecase"
	"AlphaNebula/pkg/config"
)

// stack is the resolution half of the service, without HTTP, Kafka or the feed.
type stack struct {
	store    *repository.SQLCandidateStore
	resolver *usecase.EntityResolver
	curation *usecase.AliasCuration
	cleanup  func()
}

func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}

// scratch points the stack at a throwaway in-memory store with a local cache.
func scratch(cfg *config.Config) {
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = "file::memory:?cache=shared"
	cfg.Store.MaxOpenConns = 1
	cfg.Cache.Backend = "memory"
	cfg.Jobs.Backend = "local"
}

func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	cfg.Log.Level = logLevel
	cfg.Log.Output = "stderr"
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*stack, error) {
		cleanup()
		return nil, err
	}

	db, closeDB, err := di.ProvideDatabase(cfg)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, closeDB)

	precedence, err := di.ProvideSourcePrecedence(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := di.ProvideCandidateStore(db, precedence)
	if err != nil {
		return fail(err)
	}
	rc, closeRedis, err := di.ProvideRedis(cfg)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeRedis)
	cache, closeCache := di.ProvideCache(cfg, rc)
	cleanups = append(cleanups, closeCache)

	metrics := di.ProvideMetrics()
	loader := di.ProvideLoader(cfg, cache, metrics, l)
	index := di.ProvideBlockingIndex(cfg)
	reranker := di.ProvideReranker(cfg, di.ProvideEmbedder(cfg), precedence, l)
	resolver := di.ProvideResolver(cfg, store, index, reranker, loader, metrics, l)

	jobs := di.ProvideJobQueue(cfg, rc, l)
	cleanups = append(cleanups, func() { _ = jobs.Stop(context.Background()) })
	curation := di.ProvideCuration(store, index, reranker, loader, resolver, jobs, l)

	if _, err := curation.Bootstrap(ctx); err != nil {
		return fail(fmt.Errorf("bootstrap: %w", err))
	}
	return &stack{store: store, resolver: resolver, curation: curation, cleanup: cleanup}, nil
}

func withStack(ctx context.Context, useScratch bool, fn func(*stack) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if useScratch {
		scratch(cfg)
	}
	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.cleanup()
	return fn(s)
}
