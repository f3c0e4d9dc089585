package rerank

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
	applogger "AlphaNebula/pkg/logger"
)

// keywordEmbedder maps names onto axes by keyword, like a tiny concept model.
type keywordEmbedder struct {
	mu      sync.Mutex
	batched []string
	fail    bool
}

func (k *keywordEmbedder) vector(text string) []float32 {
	s := strings.ToLower(text)
	switch {
	case strings.Contains(s, "hon hai") || strings.Contains(s, "foxconn"):
		return []float32{0, 1, 0, 0}
	case strings.Contains(s, "space"):
		return []float32{1, 0, 0, 0}
	case strings.Contains(s, "taiwan") || strings.Contains(s, "tsmc"):
		return []float32{0.6, 0.8, 0, 0}
	case strings.Contains(s, "apple"):
		return []float32{0, 0, 1, 0}
	default:
		return []float32{0, 0, 0.2, 1}
	}
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if k.fail {
		return nil, errors.New("embedder down")
	}
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if k.fail {
		return nil, errors.New("embedder down")
	}
	k.mu.Lock()
	k.batched = append(k.batched, texts...)
	k.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Dimensions() int { return 4 }
func (k *keywordEmbedder) Name() string    { return "keyword" }

func alias(name, ticker string, source models.AliasSource, conf float64) models.EntityAlias {
	return models.EntityAlias{RawName: name, Ticker: ticker, EntityType: models.EntityTypeAlias, Source: source, Confidence: conf}
}

func TestRerankOrdersBySemanticScore(t *testing.T) {
	emb := &keywordEmbedder{}
	r := New(emb, applogger.Nop())

	candidates := []models.ResolutionCandidate{
		models.CandidateFromAlias(alias("Apple Inc.", "AAPL", models.SourceManual, 1), 0.6),
		models.CandidateFromAlias(alias("Foxconn Technology Group", "HNHPF", models.SourceManual, 0.97), 0.55),
	}
	got, err := r.Rerank(context.Background(), "Hon Hai Precision Ind. Co Ltd", candidates)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "HNHPF", got[0].Ticker)
	assert.InDelta(t, 1.0, got[0].SemanticScore, 1e-9)
	assert.InDelta(t, 0.0, got[1].SemanticScore, 1e-9)
	assert.Equal(t, 0.55, got[0].BlockingScore, "blocking score is carried through")
	assert.Zero(t, candidates[0].SemanticScore, "input slice is not mutated")
}

func TestRerankTieBreaksOnConfidenceThenPrecedence(t *testing.T) {
	r := New(&keywordEmbedder{}, applogger.Nop())
	candidates := []models.ResolutionCandidate{
		models.CandidateFromAlias(alias("Foxconn A", "FUZZ", models.SourceAutomaticFuzzy, 0.9), 0),
		models.CandidateFromAlias(alias("Foxconn B", "VECT", models.SourceAutomaticVector, 0.9), 0),
		models.CandidateFromAlias(alias("Foxconn C", "LOW", models.SourceManual, 0.5), 0),
		models.CandidateFromAlias(alias("Foxconn D", "HIGH", models.SourceAutomaticFuzzy, 0.95), 0),
	}
	got, err := r.Rerank(context.Background(), "foxconn", candidates)
	require.NoError(t, err)
	tickers := make([]string, len(got))
	for i, c := range got {
		tickers[i] = c.Ticker
	}
	assert.Equal(t, []string{"HIGH", "VECT", "FUZZ", "LOW"}, tickers)

	custom := New(&keywordEmbedder{}, applogger.Nop(), WithPrecedence(models.SourcePrecedence{
		models.SourceManual, models.SourceAutomaticFuzzy, models.SourceAutomaticVector,
	}))
	got, err = custom.Rerank(context.Background(), "foxconn", candidates[:2])
	require.NoError(t, err)
	assert.Equal(t, "FUZZ", got[0].Ticker)
}

func TestEmbeddingsComputedOncePerAlias(t *testing.T) {
	emb := &keywordEmbedder{}
	r := New(emb, applogger.Nop(), WithBatchSize(2))
	aliases := []models.EntityAlias{
		alias("Foxconn", "HNHPF", models.SourceManual, 1),
		alias("FOXCONN", "HNHPF", models.SourceManual, 1),
		alias("Apple Inc.", "AAPL", models.SourceManual, 1),
		alias("SpaceX", "PRIVATE:SPACE", models.SourceManual, 1),
	}
	require.NoError(t, r.Warm(context.Background(), aliases))
	assert.Equal(t, 3, r.Size())
	assert.Len(t, emb.batched, 3)

	_, err := r.Rerank(context.Background(), "spacex", []models.ResolutionCandidate{models.CandidateFromAlias(aliases[3], 1)})
	require.NoError(t, err)
	assert.Len(t, emb.batched, 3, "cached vectors are reused")
}

func TestNearestScansObservedAliases(t *testing.T) {
	r := New(&keywordEmbedder{}, applogger.Nop())
	r.Observe(
		alias("Foxconn Technology Group", "HNHPF", models.SourceManual, 0.97),
		alias("Apple Inc.", "AAPL", models.SourceManual, 1),
		alias("Space Exploration Corp", "PRIVATE:SPACE", models.SourceManual, 1),
	)

	got, err := r.Nearest(context.Background(), "Hon Hai Precision Ind. Co Ltd", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "HNHPF", got[0].Ticker)
	assert.GreaterOrEqual(t, got[0].SemanticScore, 0.9)

	none, err := r.Nearest(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRerankPropagatesEmbedderFailure(t *testing.T) {
	r := New(&keywordEmbedder{fail: true}, applogger.Nop())
	_, err := r.Rerank(context.Background(), "foxconn", []models.ResolutionCandidate{{RawName: "Foxconn"}})
	assert.Error(t, err)
}
