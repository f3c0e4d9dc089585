// Package signals holds the statistics behind the signal engine: rolling z-scores,
// stationarity and Granger tests, and the nowcasting regression.
package signals

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"AlphaNebula/internal/domain/models"
)

// AnomalyConfig tunes the rolling z-score.
type AnomalyConfig struct {
	Window     time.Duration
	MinHistory int
	Threshold  float64
}

func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{Window: 90 * 24 * time.Hour, MinHistory: 14, Threshold: 2.0}
}

// Scorer implements service.AnomalyScorer.
type Scorer struct {
	cfg AnomalyConfig
}

func NewScorer(cfg AnomalyConfig) *Scorer {
	d := DefaultAnomalyConfig()
	if cfg.Window <= 0 {
		cfg.Window = d.Window
	}
	if cfg.MinHistory < 2 {
		cfg.MinHistory = d.MinHistory
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = d.Threshold
	}
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() AnomalyConfig { return s.cfg }

// Score rates every event at or after from against the events in [t-window, t).
// history must be one partition ordered by created_at and must reach back at least
// one window before from.
func (s *Scorer) Score(history []models.SignalEvent, from time.Time) []models.AnomalyScore {
	var out []models.AnomalyScore
	lo, hi := 0, 0
	values := make([]float64, 0, len(history))
	for _, e := range history {
		values = append(values, e.Value)
	}

	for i, e := range history {
		if e.CreatedAt.Before(from) {
			continue
		}
		start := e.CreatedAt.Add(-s.cfg.Window)
		for lo < i && history[lo].CreatedAt.Before(start) {
			lo++
		}
		if hi < lo {
			hi = lo
		}
		for hi < i && history[hi].CreatedAt.Before(e.CreatedAt) {
			hi++
		}
		out = append(out, s.score(e, values[lo:hi]))
	}
	return out
}

func (s *Scorer) score(e models.SignalEvent, window []float64) models.AnomalyScore {
	sc := models.AnomalyScore{Event: e, History: len(window)}
	if len(window) < s.cfg.MinHistory {
		sc.Status = models.AnomalyInsufficientHistory
		return sc
	}
	mean, std := stat.MeanStdDev(window, nil)
	sc.Mean, sc.StdDev = mean, std
	if std == 0 || math.IsNaN(std) {
		sc.Status = models.AnomalyFlat
		return sc
	}
	z := (e.Value - mean) / std
	sc.Z = &z
	sc.Status = models.AnomalyScored
	sc.Anomalous = math.Abs(z) > s.cfg.Threshold
	return sc
}
