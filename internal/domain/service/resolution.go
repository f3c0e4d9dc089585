package service

import (
	"context"

	"AlphaNebula/internal/domain/models"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// ScoredAlias is a known alias with a lexical similarity score in [0, 1].
type ScoredAlias struct {
	Alias models.EntityAlias
	Score float64
}

// BlockingIndex shrinks the alias set to lexically close candidates.
type BlockingIndex interface {
	Candidates(rawName string, k int) []ScoredAlias
	Add(aliases ...models.EntityAlias)
	Remove(key models.AliasKey)
	Len() int
}

// Reranker orders candidates by semantic closeness to a raw name.
type Reranker interface {
	Rerank(ctx context.Context, rawName string, candidates []models.ResolutionCandidate) ([]models.ResolutionCandidate, error)
	Nearest(ctx context.Context, rawName string, k int) ([]models.ResolutionCandidate, error)
	Warm(ctx context.Context, aliases []models.EntityAlias) error
	Observe(aliases ...models.EntityAlias)
}

// Resolver maps a mention onto a ticker or queues it for review.
type Resolver interface {
	Resolve(ctx context.Context, mention models.RawMention) (models.ResolutionResult, error)
	ResolveCached(ctx context.Context, mention models.RawMention) (models.ResolutionResult, error)
}
