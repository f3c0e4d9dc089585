package service

import (
	"context"
	"time"

	"AlphaNebula/internal/domain/models"
)

// AnomalyScorer computes rolling z-scores over an ordered partition.
type AnomalyScorer interface {
	Score(history []models.SignalEvent, from time.Time) []models.AnomalyScore
}

// CausalityTester screens a candidate series against a reference series.
type CausalityTester interface {
	Test(candidate, reference []models.SignalEvent, freq models.Frequency, maxLag int) models.CausalityResult
}

// SignalEngine is the read side exposed to API and downstream consumers.
type SignalEngine interface {
	Events(ctx context.Context, q models.SignalQuery) ([]models.SignalEvent, error)
	Anomalies(ctx context.Context, q models.SignalQuery) ([]models.AnomalyScore, error)
	Causality(ctx context.Context, ticker string, candidate, reference models.SignalType, freq models.Frequency, maxLag int) (models.CausalityResult, error)
	Nowcast(ctx context.Context, ticker string, target models.SignalType, candidates []models.SignalType, freq models.Frequency) (models.Nowcast, error)
	Freshness(ctx context.Context, ticker string, signalType models.SignalType, ttl time.Duration) (models.Freshness, error)
}
