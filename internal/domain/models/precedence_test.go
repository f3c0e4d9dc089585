package models

import (
	"errors"
	"testing"
)

func alias(ticker string, conf float64, src AliasSource) EntityAlias {
	return EntityAlias{RawName: "Foxconn", Ticker: ticker, EntityType: EntityTypeAlias, Confidence: conf, Source: src}
}

func TestMergeRules(t *testing.T) {
	p := DefaultSourcePrecedence
	cases := []struct {
		name        string
		existing    EntityAlias
		incoming    EntityAlias
		wantTicker  string
		wantConf    float64
		wantSource  AliasSource
		wantChanged bool
		wantErr     error
	}{
		{"automatic never touches manual", alias("HNHPF", 0.5, SourceManual), alias("AAPL", 0.99, SourceAutomaticVector), "HNHPF", 0.5, SourceManual, false, nil},
		{"automatic cannot raise manual", alias("HNHPF", 0.5, SourceManual), alias("HNHPF", 0.99, SourceAutomaticVector), "HNHPF", 0.5, SourceManual, false, nil},
		{"confirmation raises confidence", alias("HNHPF", 0.91, SourceAutomaticVector), alias("HNHPF", 0.95, SourceAutomaticVector), "HNHPF", 0.95, SourceAutomaticVector, true, nil},
		{"confirmation never lowers", alias("HNHPF", 0.95, SourceAutomaticVector), alias("HNHPF", 0.91, SourceAutomaticVector), "HNHPF", 0.95, SourceAutomaticVector, false, nil},
		{"manual overrides equal automatic", alias("AAPL", 0.9, SourceAutomaticVector), alias("HNHPF", 0.9, SourceManual), "HNHPF", 0.9, SourceManual, true, nil},
		{"manual loses to higher automatic", alias("AAPL", 0.95, SourceAutomaticVector), alias("HNHPF", 0.9, SourceManual), "AAPL", 0.95, SourceAutomaticVector, false, ErrAliasConflict},
		{"manual corrects manual", alias("AAPL", 1, SourceManual), alias("HNHPF", 0.8, SourceManual), "HNHPF", 0.8, SourceManual, true, nil},
		{"vector beats weaker fuzzy", alias("AAPL", 0.6, SourceAutomaticFuzzy), alias("HNHPF", 0.93, SourceAutomaticVector), "HNHPF", 0.93, SourceAutomaticVector, true, nil},
		{"same rank automatic keeps first", alias("AAPL", 0.91, SourceAutomaticVector), alias("HNHPF", 0.99, SourceAutomaticVector), "AAPL", 0.91, SourceAutomaticVector, false, nil},
		{"manual promotes same ticker", alias("HNHPF", 0.9, SourceAutomaticVector), alias("HNHPF", 1, SourceManual), "HNHPF", 1, SourceManual, true, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, changed, err := p.Merge(c.existing, c.incoming)
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("err = %v, want %v", err, c.wantErr)
			}
			if got.Ticker != c.wantTicker || got.Confidence != c.wantConf || got.Source != c.wantSource || changed != c.wantChanged {
				t.Fatalf("got %s/%v/%s changed=%v", got.Ticker, got.Confidence, got.Source, changed)
			}
		})
	}
}

func TestMergeFollowsConfiguredOrder(t *testing.T) {
	p, err := ParseSourcePrecedence([]string{"manual", "automatic_fuzzy", "automatic_vector"})
	if err != nil {
		t.Fatal(err)
	}
	got, changed, _ := p.Merge(alias("AAPL", 0.9, SourceAutomaticVector), alias("HNHPF", 0.9, SourceAutomaticFuzzy))
	if !changed || got.Ticker != "HNHPF" {
		t.Fatalf("fuzzy should outrank vector under the configured order, got %+v", got)
	}

	if _, err := ParseSourcePrecedence([]string{"manual", "manual"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := ParseSourcePrecedence([]string{"robot"}); err == nil {
		t.Fatal("expected unknown source error")
	}
}
