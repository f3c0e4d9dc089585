package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/domain/service"
)

// CatalogEntity is one company record of a seed or evaluation file.
type CatalogEntity struct {
	Name        string   `json:"name"`
	Ticker      string   `json:"ticker"`
	Aliases     []string `json:"aliases,omitempty"`
	TestQueries []string `json:"test_queries,omitempty"`
}

// SeedReport counts what Seed did with each name.
type SeedReport struct {
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Seed writes each entity's canonical name and aliases as manual aliases.
func Seed(ctx context.Context, curation *AliasCuration, entities []CatalogEntity, withAliases bool) (SeedReport, error) {
	var rep SeedReport
	for _, e := range entities {
		ticker := models.NormalizeTicker(e.Ticker)
		if ticker == "" {
			return rep, models.NewValidationError("ticker", fmt.Sprintf("missing for %q", e.Name))
		}
		names := []string{e.Name}
		if withAliases {
			names = append(names, e.Aliases...)
		}
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			_, outcome, err := curation.Curate(ctx, models.EntityAlias{
				RawName:    name,
				Ticker:     ticker,
				EntityType: models.EntityTypeAlias,
				Confidence: 1,
			})
			switch {
			case errors.Is(err, models.ErrAliasConflict):
				rep.Conflicts = append(rep.Conflicts, name)
				continue
			case err != nil:
				return rep, fmt.Errorf("seed %q: %w", name, err)
			}
			switch outcome {
			case domrepo.OutcomeInserted:
				rep.Inserted++
			case domrepo.OutcomeUpdated:
				rep.Updated++
			default:
				rep.Unchanged++
			}
		}
	}
	return rep, nil
}

// EvalCase is the outcome of one golden query.
type EvalCase struct {
	Query      string                  `json:"query"`
	Expected   string                  `json:"expected"`
	Got        string                  `json:"got,omitempty"`
	Confidence float64                 `json:"confidence"`
	Status     models.ResolutionStatus `json:"status"`
	Method     models.ResolutionMethod `json:"method"`
	Pass       bool                    `json:"pass"`
}

// EvalReport summarizes a golden-set run.
type EvalReport struct {
	Total    int        `json:"total"`
	Passed   int        `json:"passed"`
	Accuracy float64    `json:"accuracy"`
	Cases    []EvalCase `json:"cases"`
}

// Failures returns the cases that did not resolve to the expected ticker.
func (r EvalReport) Failures() []EvalCase {
	var out []EvalCase
	for _, c := range r.Cases {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate resolves every test query and compares the linked ticker with the expected one.
// A query that lands in review counts as a failure.
func Evaluate(ctx context.Context, resolver service.Resolver, entities []CatalogEntity) (EvalReport, error) {
	rep := EvalReport{Cases: []EvalCase{}}
	for _, e := range entities {
		want := models.NormalizeTicker(e.Ticker)
		for _, q := range e.TestQueries {
			res, err := resolver.Resolve(ctx, models.RawMention{RawName: q, Source: "eval"})
			if err != nil {
				return rep, fmt.Errorf("resolve %q: %w", q, err)
			}
			c := EvalCase{
				Query:      q,
				Expected:   want,
				Confidence: res.Confidence,
				Status:     res.Status,
				Method:     res.Method,
			}
			if res.Linked() {
				c.Got = *res.Ticker
				c.Pass = c.Got == want
			}
			rep.Total++
			if c.Pass {
				rep.Passed++
			}
			rep.Cases = append(rep.Cases, c)
		}
	}
	if rep.Total > 0 {
		rep.Accuracy = float64(rep.Passed) / float64(rep.Total)
	}
	return rep, nil
}
