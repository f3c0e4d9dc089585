package signals

import (
	"errors"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/services/features"
)

// CausalityConfig bounds the lagged-causality screen.
type CausalityConfig struct {
	Alpha           float64
	MaxDiff         int
	ADFLags         int
	MinObservations int
}

func DefaultCausalityConfig() CausalityConfig {
	return CausalityConfig{Alpha: 0.05, MaxDiff: 1, ADFLags: 1, MinObservations: 12}
}

// Tester implements service.CausalityTester.
type Tester struct {
	cfg CausalityConfig
}

func NewTester(cfg CausalityConfig) *Tester {
	d := DefaultCausalityConfig()
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = d.Alpha
	}
	if cfg.MaxDiff < 0 {
		cfg.MaxDiff = d.MaxDiff
	}
	if cfg.ADFLags < 0 {
		cfg.ADFLags = d.ADFLags
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = d.MinObservations
	}
	return &Tester{cfg: cfg}
}

// Test asks whether candidate Granger-causes reference at freq.
func (t *Tester) Test(candidate, reference []models.SignalEvent, freq models.Frequency, maxLag int) models.CausalityResult {
	res := models.CausalityResult{Frequency: freq}
	if len(reference) > 0 {
		res.Ticker = reference[0].Ticker
		res.Reference = reference[0].SignalType
	}
	if len(candidate) > 0 {
		res.Ticker = candidate[0].Ticker
		res.Candidate = candidate[0].SignalType
	}

	// lags count periods at freq, so only a gap-free stretch of shared buckets is tested
	aligned := features.Contiguous(freq, features.Align(features.Resample(candidate, freq), features.Resample(reference, freq))...)
	x, y := aligned[0].Values, aligned[1].Values
	res.Observations = len(x)
	if len(x) < t.cfg.MinObservations {
		res.Status = models.CausalityInsufficientHistory
		res.Reason = "too few consecutive aligned periods"
		return res
	}

	var (
		lags []models.LagResult
		err  error
	)
	for {
		lags, err = Granger(x, y, maxLag, t.cfg.ADFLags)
		if !errors.Is(err, models.ErrNonStationarySeries) || res.Differenced >= t.cfg.MaxDiff {
			break
		}
		x, y = features.Difference(x), features.Difference(y)
		res.Differenced++
	}

	switch {
	case errors.Is(err, models.ErrNonStationarySeries):
		res.Status = models.CausalityNonStationary
		res.Reason = err.Error()
		return res
	case errors.Is(err, models.ErrInsufficientHistory):
		res.Status = models.CausalityInsufficientHistory
		res.Reason = "too few periods for the requested lags"
		return res
	case errors.Is(err, errDegenerate):
		one := 1.0
		res.Status = models.CausalityUnproven
		res.PValue = &one
		res.Reason = err.Error()
		return res
	case err != nil:
		res.Status = models.CausalityUnproven
		res.Reason = err.Error()
		return res
	}

	p, best := Bonferroni(lags)
	res.Lags = lags
	res.PValue = &p
	res.BestLag = best
	if p < t.cfg.Alpha {
		res.Status = models.CausalityPredictive
	} else {
		res.Status = models.CausalityUnproven
	}
	return res
}
