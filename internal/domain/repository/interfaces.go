package repository

import (
	"context"

	"AlphaNebula/internal/domain/models"
)

// UpsertOutcome tells what an alias upsert did to the stored row.
type UpsertOutcome string

const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// AliasStore owns EntityAlias records. Writers for one raw name are serialized.
type AliasStore interface {
	Init(ctx context.Context) error
	// FindExact returns nil, nil when no alias exists for the key.
	FindExact(ctx context.Context, rawName string, entityType models.EntityType) (*models.EntityAlias, error)
	FindByName(ctx context.Context, rawName string) ([]models.EntityAlias, error)
	// Upsert applies the precedence rules atomically and returns the row as stored.
	Upsert(ctx context.Context, alias models.EntityAlias) (models.EntityAlias, UpsertOutcome, error)
	ListByTicker(ctx context.Context, ticker string, limit int) ([]models.EntityAlias, error)
	All(ctx context.Context) ([]models.EntityAlias, error)
	Health(ctx context.Context) error
	Close() error
}

// ReviewQueue persists unresolved mentions as first-class, queryable items.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item models.ReviewItem) (models.ReviewItem, error)
	Pending(ctx context.Context, limit, offset int) ([]models.ReviewItem, error)
	Item(ctx context.Context, id string) (models.ReviewItem, error)
	// Approve writes alias as a manual mapping and removes the item in one transaction.
	Approve(ctx context.Context, id string, alias models.EntityAlias) (models.EntityAlias, error)
	Discard(ctx context.Context, id string) (models.ReviewItem, error)
}

// SignalStore is the append-only event log.
type SignalStore interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, events ...models.SignalEvent) error
	// Query returns events ordered by created_at then signal_id.
	Query(ctx context.Context, q models.SignalQuery) ([]models.SignalEvent, error)
	Latest(ctx context.Context, ticker string, signalType models.SignalType) (*models.SignalEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// AlertPublisher fans anomaly alerts out to downstream consumers.
type AlertPublisher interface {
	PublishAnomaly(ctx context.Context, score models.AnomalyScore) error
	Close() error
}

// MentionStream delivers raw source frames from an upstream scraper gateway.
type MentionStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.SourceFrame, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// MentionProducer is the capability every scraper or source exposes to the core.
type MentionProducer interface {
	ProduceMention(rawText string) (models.RawMention, error)
}

// MentionProducerFunc adapts a function to MentionProducer.
type MentionProducerFunc func(rawText string) (models.RawMention, error)

func (f MentionProducerFunc) ProduceMention(rawText string) (models.RawMention, error) {
	return f(rawText)
}

type Metrics interface {
	RecordResolution(status, method string)
	RecordCacheResult(result string)
	RecordSignalIngested(signalType string)
	RecordAnomaly(signalType string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) RecordResolution(string, string) {}
func (NopMetrics) RecordCacheResult(string) {}
func (NopMetrics) RecordSignalIngested(string) {}
func (NopMetrics) RecordAnomaly(string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLatency(string, float64) {}
