package usecase

import (
	"context"
	"fmt"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/service/cache"
	applogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/queue"
)

// AliasCuration is the human side of resolution: manual aliases and review decisions.
// Every write refreshes the in-memory index and reranker and drops cached results for the name.
type AliasCuration struct {
	aliases  domrepo.AliasStore
	review   domrepo.ReviewQueue
	index    service.BlockingIndex
	reranker service.Reranker
	cache    *cache.Loader
	sweeps   queue.Publisher
	log      *applogger.Logger
}

func NewAliasCuration(
	aliases domrepo.AliasStore,
	review domrepo.ReviewQueue,
	index service.BlockingIndex,
	reranker service.Reranker,
	loader *cache.Loader,
	l *applogger.Logger,
) *AliasCuration {
	if l == nil {
		l = applogger.Nop()
	}
	return &AliasCuration{
		aliases:  aliases,
		review:   review,
		index:    index,
		reranker: reranker,
		cache:    loader,
		log:      l.Component("curation"),
	}
}

// Bootstrap loads every stored alias into the blocking index and warms embeddings.
// A warm-up failure is logged; vectors are then filled lazily.
func (c *AliasCuration) Bootstrap(ctx context.Context) (int, error) {
	all, err := c.aliases.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load aliases: %w", err)
	}
	c.index.Add(all...)
	c.reranker.Observe(all...)
	if err := c.reranker.Warm(ctx, all); err != nil {
		c.log.Warn("embedding warm-up failed", applogger.Error(err))
	}
	c.log.Info("alias index built", applogger.Int("aliases", len(all)), applogger.Int("indexed", c.index.Len()))
	return len(all), nil
}

// Curate writes a manual alias. A conflicting higher-precedence mapping yields ErrAliasConflict.
func (c *AliasCuration) Curate(ctx context.Context, a models.EntityAlias) (models.EntityAlias, domrepo.UpsertOutcome, error) {
	a.Source = models.SourceManual
	if a.EntityType == "" {
		a.EntityType = models.EntityTypeAlias
	}
	stored, outcome, err := c.aliases.Upsert(ctx, a)
	if err != nil {
		return models.EntityAlias{}, "", err
	}
	c.refresh(ctx, stored)
	c.log.Info("alias curated",
		applogger.String("raw_name", stored.RawName),
		applogger.String("ticker", stored.Ticker),
		applogger.String("outcome", string(outcome)),
	)
	return stored, outcome, nil
}

// List returns aliases for ticker, or every alias when ticker is empty.
func (c *AliasCuration) List(ctx context.Context, ticker string, limit int) ([]models.EntityAlias, error) {
	return c.aliases.ListByTicker(ctx, ticker, limit)
}

func (c *AliasCuration) Pending(ctx context.Context, limit, offset int) ([]models.ReviewItem, error) {
	return c.review.Pending(ctx, limit, offset)
}

// Approve turns a review item into a manual alias. An empty entity type keeps the item's.
func (c *AliasCuration) Approve(ctx context.Context, id, ticker string, entityType models.EntityType, confidence float64) (models.EntityAlias, error) {
	item, err := c.review.Item(ctx, id)
	if err != nil {
		return models.EntityAlias{}, err
	}
	if entityType == "" {
		entityType = item.EntityType
	}
	if confidence <= 0 {
		confidence = 1
	}
	stored, err := c.review.Approve(ctx, id, models.EntityAlias{
		RawName:    item.RawName,
		Ticker:     ticker,
		EntityType: entityType,
		Confidence: confidence,
		Source:     models.SourceManual,
	})
	if err != nil {
		return models.EntityAlias{}, err
	}
	c.refresh(ctx, stored)
	c.log.Info("review approved",
		applogger.String("review_id", id),
		applogger.String("raw_name", stored.RawName),
		applogger.String("ticker", stored.Ticker),
	)
	return stored, nil
}

func (c *AliasCuration) Discard(ctx context.Context, id string) (models.ReviewItem, error) {
	item, err := c.review.Discard(ctx, id)
	if err != nil {
		return models.ReviewItem{}, err
	}
	c.invalidate(ctx, item.RawName)
	c.log.Info("review discarded", applogger.String("review_id", id), applogger.String("raw_name", item.RawName))
	return item, nil
}

// SetSweeper enables a review sweep after each alias write.
func (c *AliasCuration) SetSweeper(p queue.Publisher) { c.sweeps = p }

func (c *AliasCuration) refresh(ctx context.Context, a models.EntityAlias) {
	c.index.Add(a)
	c.reranker.Observe(a)
	c.invalidate(ctx, a.RawName)
	if c.sweeps != nil {
		if err := c.sweeps.Enqueue(ctx, ReviewSweepType, ReviewSweep{}); err != nil {
			c.log.Warn("review sweep not scheduled", applogger.Error(err))
		}
	}
}

func (c *AliasCuration) invalidate(ctx context.Context, rawName string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, cache.ResolvePattern(rawName)); err != nil {
		c.log.Warn("cache invalidation failed", applogger.String("raw_name", rawName), applogger.Error(err))
	}
}
