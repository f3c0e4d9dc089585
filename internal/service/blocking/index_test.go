package blocking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
)

func manual(name, ticker string) models.EntityAlias {
	return models.EntityAlias{RawName: name, Ticker: ticker, EntityType: models.EntityTypeAlias, Source: models.SourceManual, Confidence: 1}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("apple", "apple"))
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.InDelta(t, 0.8, Ratio("apple", "appla"), 1e-9)
	assert.Equal(t, 0.0, Ratio("abc", ""))
}

func TestTokenSetRatioIgnoresOrder(t *testing.T) {
	assert.Equal(t, 1.0, TokenSetRatio("precision hon hai", "hon hai precision"))
	assert.Less(t, TokenSetRatio("apple", "apple hospitality reit"), 0.5)
	assert.Greater(t, Score("hon hai precision ind co ltd", "hon hai precision ind co"), 0.85)
}

func TestCandidatesRanksAndCuts(t *testing.T) {
	ix := New(WithMinScore(0.5))
	ix.Add(
		manual("Taiwan Semiconductor Mfg.", "TSM"),
		manual("Taiwan Semiconductor Manufacturing", "TSM"),
		manual("Apple Inc.", "AAPL"),
		manual("Hon Hai Precision Ind. Co.", "2317.TW"),
	)
	require.Equal(t, 4, ix.Len())

	got := ix.Candidates("Taiwan Semiconductor Mfg", 10)
	require.NotEmpty(t, got)
	assert.Equal(t, "Taiwan Semiconductor Mfg.", got[0].Alias.RawName)
	assert.Equal(t, 1.0, got[0].Score)
	for _, c := range got {
		assert.NotEqual(t, "AAPL", c.Alias.Ticker)
		assert.GreaterOrEqual(t, c.Score, 0.5)
	}

	assert.Empty(t, ix.Candidates("Zzyzx Quantum Holdings", 10))
	assert.Empty(t, ix.Candidates("   ", 10))
}

func TestCandidatesDeterministicTies(t *testing.T) {
	ix := New()
	same := []models.EntityAlias{
		{RawName: "Acme", Ticker: "ZZZ", EntityType: models.EntitySupplier, Source: models.SourceManual, Confidence: 1},
		{RawName: "Acme", Ticker: "AAA", EntityType: models.EntityTypeAlias, Source: models.SourceManual, Confidence: 1},
		{RawName: "Acme", Ticker: "AAA", EntityType: models.EntitySubsidiary, Source: models.SourceManual, Confidence: 1},
	}
	ix.Add(same...)

	for i := 0; i < 5; i++ {
		got := ix.Candidates("acme", 3)
		require.Len(t, got, 3)
		assert.Equal(t, "AAA", got[0].Alias.Ticker)
		assert.Equal(t, models.EntityTypeAlias, got[0].Alias.EntityType)
		assert.Equal(t, models.EntitySubsidiary, got[1].Alias.EntityType)
		assert.Equal(t, "ZZZ", got[2].Alias.Ticker)
	}
}

func TestCandidatesLimitAndShortlist(t *testing.T) {
	ix := New(WithShortlist(20), WithMinScore(0))
	for i := 0; i < 200; i++ {
		ix.Add(manual(fmt.Sprintf("Global Logistics %03d", i), fmt.Sprintf("T%03d", i)))
	}
	got := ix.Candidates("Global Logistics 042", 5)
	require.Len(t, got, 5)
	assert.Equal(t, "Global Logistics 042", got[0].Alias.RawName)
}

func TestAddReplacesAndRemove(t *testing.T) {
	ix := New()
	ix.Add(manual("Foxconn", "HNHPF"))
	ix.Add(manual("FOXCONN", "2317.TW"))
	require.Equal(t, 1, ix.Len())
	got := ix.Candidates("foxconn", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "2317.TW", got[0].Alias.Ticker)

	ix.Remove(models.AliasKey{Name: "foxconn", EntityType: models.EntityTypeAlias})
	assert.Zero(t, ix.Len())
	assert.Empty(t, ix.Candidates("foxconn", 5))
}
