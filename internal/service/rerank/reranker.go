// Package rerank orders resolution candidates by embedding similarity.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/service/embedding"
	applogger "AlphaNebula/pkg/logger"
)

// Reranker scores candidates by cosine similarity against cached alias embeddings.
// Each normalized alias name is embedded once for the process lifetime.
type Reranker struct {
	embedder   service.Embedder
	precedence models.SourcePrecedence
	batchSize  int
	l          *applogger.Logger

	mu      sync.RWMutex
	vectors map[string][]float32
	aliases map[models.AliasKey]models.EntityAlias
}

// Option configures Reranker.
type Option func(*Reranker)

func WithPrecedence(p models.SourcePrecedence) Option {
	return func(r *Reranker) {
		if len(p) > 0 {
			r.precedence = p
		}
	}
}

// WithBatchSize bounds how many names are sent to the embedder at once.
func WithBatchSize(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func New(embedder service.Embedder, l *applogger.Logger, opts ...Option) *Reranker {
	if l == nil {
		l = applogger.Nop()
	}
	r := &Reranker{
		embedder:   embedder,
		precedence: models.DefaultSourcePrecedence,
		batchSize:  64,
		l:          l.Component("reranker"),
		vectors:    make(map[string][]float32),
		aliases:    make(map[models.AliasKey]models.EntityAlias),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ service.Reranker = (*Reranker)(nil)

// Observe registers aliases for Nearest. Their vectors are computed lazily.
func (r *Reranker) Observe(aliases ...models.EntityAlias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range aliases {
		if key := a.Key(); key.Name != "" {
			r.aliases[key] = a
		}
	}
}

// Warm registers aliases and embeds every name not yet cached.
func (r *Reranker) Warm(ctx context.Context, aliases []models.EntityAlias) error {
	r.Observe(aliases...)
	names := make([]string, 0, len(aliases))
	for _, a := range aliases {
		names = append(names, models.NormalizeName(a.RawName))
	}
	if err := r.ensure(ctx, names); err != nil {
		return err
	}
	r.l.Info("alias embeddings warmed",
		applogger.Int("aliases", len(aliases)),
		applogger.String("embedder", r.embedder.Name()))
	return nil
}

// Rerank sets SemanticScore on every candidate and sorts them.
func (r *Reranker) Rerank(ctx context.Context, rawName string, candidates []models.ResolutionCandidate) ([]models.ResolutionCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	query, err := r.embedder.Embed(ctx, rawName)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = models.NormalizeName(c.RawName)
	}
	if err := r.ensure(ctx, names); err != nil {
		return nil, err
	}

	out := make([]models.ResolutionCandidate, len(candidates))
	copy(out, candidates)
	r.mu.RLock()
	for i := range out {
		out[i].SemanticScore = embedding.Cosine(query, r.vectors[names[i]])
	}
	r.mu.RUnlock()

	r.sort(out)
	return out, nil
}

// Nearest scans every observed alias and returns the k most similar.
func (r *Reranker) Nearest(ctx context.Context, rawName string, k int) ([]models.ResolutionCandidate, error) {
	if k <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.aliases))
	for key := range r.aliases {
		if _, ok := r.vectors[key.Name]; !ok {
			names = append(names, key.Name)
		}
	}
	r.mu.RUnlock()
	if err := r.ensure(ctx, names); err != nil {
		return nil, err
	}

	query, err := r.embedder.Embed(ctx, rawName)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	r.mu.RLock()
	out := make([]models.ResolutionCandidate, 0, len(r.aliases))
	for key, a := range r.aliases {
		c := models.CandidateFromAlias(a, 0)
		c.SemanticScore = embedding.Cosine(query, r.vectors[key.Name])
		out = append(out, c)
	}
	r.mu.RUnlock()

	r.sort(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// ensure embeds the distinct names that have no cached vector.
func (r *Reranker) ensure(ctx context.Context, names []string) error {
	r.mu.RLock()
	seen := make(map[string]bool, len(names))
	missing := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := r.vectors[n]; !ok {
			missing = append(missing, n)
		}
	}
	r.mu.RUnlock()
	sort.Strings(missing)

	for start := 0; start < len(missing); start += r.batchSize {
		end := start + r.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		vecs, err := r.embedder.EmbedBatch(ctx, missing[start:end])
		if err != nil {
			return fmt.Errorf("embed aliases: %w", err)
		}
		r.mu.Lock()
		for i, v := range vecs {
			r.vectors[missing[start+i]] = v
		}
		r.mu.Unlock()
	}
	return nil
}

// sort orders by semantic score, then existing confidence, then source precedence.
func (r *Reranker) sort(c []models.ResolutionCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if ra, rb := r.precedence.Rank(a.Source), r.precedence.Rank(b.Source); ra != rb {
			return ra < rb
		}
		if a.RawName != b.RawName {
			return a.RawName < b.RawName
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.EntityType < b.EntityType
	})
}

// Size reports how many alias names have a cached vector.
func (r *Reranker) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vectors)
}
