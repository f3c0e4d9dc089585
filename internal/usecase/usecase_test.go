package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/repository"
	"AlphaNebula/internal/service/blocking"
	"AlphaNebula/internal/service/cache"
	"AlphaNebula/internal/service/rerank"
	pkgcache "AlphaNebula/pkg/cache"
	"AlphaNebula/pkg/database"
	applogger "AlphaNebula/pkg/logger"
)

// conceptEmbedder places names on axes by keyword so scenarios have known cosines.
type conceptEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *conceptEmbedder) vector(text string) []float32 {
	s := strings.ToLower(text)
	switch {
	case strings.Contains(s, "hon hai") || strings.Contains(s, "foxconn"):
		return []float32{0, 1, 0, 0}
	case strings.Contains(s, "taiwan") || strings.Contains(s, "tsmc"):
		return []float32{0.6, 0.8, 0, 0}
	case strings.Contains(s, "apple"):
		return []float32{0, 0, 1, 0}
	default:
		return []float32{0, 0, 0.2, 1}
	}
}

func (e *conceptEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("embedder down")
	}
	return e.vector(text), nil
}

func (e *conceptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *conceptEmbedder) Dimensions() int { return 4 }
func (e *conceptEmbedder) Name() string    { return "concept" }

// countingIndex records calls into the blocking index.
type countingIndex struct {
	service.BlockingIndex
	mu    sync.Mutex
	calls int
}

func (c *countingIndex) Candidates(rawName string, k int) []service.ScoredAlias {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.BlockingIndex.Candidates(rawName, k)
}

func (c *countingIndex) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// countingReranker records calls into the reranker.
type countingReranker struct {
	service.Reranker
	mu    sync.Mutex
	calls int
}

func (c *countingReranker) Rerank(ctx context.Context, rawName string, cands []models.ResolutionCandidate) ([]models.ResolutionCandidate, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Reranker.Rerank(ctx, rawName, cands)
}

func (c *countingReranker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	store    *repository.SQLCandidateStore
	index    *countingIndex
	reranker *countingReranker
	embedder *conceptEmbedder
	loader   *cache.Loader
	mem      *pkgcache.MemoryCache
	resolver *EntityResolver
	curation *AliasCuration
}

var seedAliases = []models.EntityAlias{
	{RawName: "Foxconn Technology Group", Ticker: "HNHPF", EntityType: models.EntityTypeAlias, Confidence: 1, Source: models.SourceManual},
	{RawName: "Apple Inc", Ticker: "AAPL", EntityType: models.EntityTypeAlias, Confidence: 1, Source: models.SourceManual},
	{RawName: "Taiwan Semiconductor Manufacturing Company Limited", Ticker: "TSM", EntityType: models.EntityTypeAlias, Confidence: 1, Source: models.SourceManual},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	client, err := database.NewClient(database.WithDialect(database.DialectSQLite), database.WithDSN(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:    repository.NewSQLCandidateStore(client),
		index:    &countingIndex{BlockingIndex: blocking.New()},
		embedder: &conceptEmbedder{},
		mem:      pkgcache.NewMemoryCache(),
	}
	t.Cleanup(func() { _ = f.mem.Close() })
	require.NoError(t, f.store.Init(ctx))
	for _, a := range seedAliases {
		_, _, err := f.store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	f.reranker = &countingReranker{Reranker: rerank.New(f.embedder, applogger.Nop())}
	f.loader = cache.NewLoader(f.mem, applogger.Nop())
	f.resolver = NewEntityResolver(f.store, f.store, f.index, f.reranker, f.loader, nil, applogger.Nop(), DefaultResolverConfig())
	f.curation = NewAliasCuration(f.store, f.store, f.index, f.reranker, f.loader, applogger.Nop())

	n, err := f.curation.Bootstrap(ctx)
	require.NoError(t, err)
	require.Equal(t, len(seedAliases), n)
	return f
}

func pending(t *testing.T, f *fixture) []models.ReviewItem {
	t.Helper()
	items, err := f.store.Pending(context.Background(), 100, 0)
	require.NoError(t, err)
	return items
}
