package signals

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"AlphaNebula/internal/domain/models"
)

// GrangerAt runs the F-test that lags 1..p of x add explanatory power for y beyond
// y's own lags. Both series must be aligned, equal length and already stationary.
func GrangerAt(x, y []float64, p int) (models.LagResult, error) {
	if len(x) != len(y) {
		return models.LagResult{}, fmt.Errorf("granger: length mismatch %d vs %d", len(x), len(y))
	}
	n := len(y) - p
	df2 := n - 2*p - 1
	if p < 1 || df2 < 1 {
		return models.LagResult{}, models.ErrInsufficientHistory
	}

	restricted := make([][]float64, 0, n)
	unrestricted := make([][]float64, 0, n)
	target := make([]float64, 0, n)
	for t := p; t < len(y); t++ {
		r := make([]float64, 0, p+1)
		r = append(r, 1)
		for i := 1; i <= p; i++ {
			r = append(r, y[t-i])
		}
		u := make([]float64, 0, 2*p+1)
		u = append(u, r...)
		for i := 1; i <= p; i++ {
			u = append(u, x[t-i])
		}
		restricted = append(restricted, r)
		unrestricted = append(unrestricted, u)
		target = append(target, y[t])
	}

	fr, err := ols(restricted, target, false)
	if err != nil {
		return models.LagResult{}, fmt.Errorf("granger restricted lag %d: %w", p, err)
	}
	fu, err := ols(unrestricted, target, false)
	if err != nil {
		return models.LagResult{}, fmt.Errorf("granger unrestricted lag %d: %w", p, err)
	}

	res := models.LagResult{Lag: p, DF1: p, DF2: df2}
	const eps = 1e-12
	switch {
	case fu.RSS <= eps && fr.RSS-fu.RSS > eps:
		res.FStat = math.Inf(1)
		res.PValue = 0
	case fu.RSS <= eps:
		res.PValue = 1
	default:
		f := ((fr.RSS - fu.RSS) / float64(p)) / (fu.RSS / float64(df2))
		if f < 0 {
			f = 0
		}
		res.FStat = f
		res.PValue = distuv.F{D1: float64(p), D2: float64(df2)}.Survival(f)
	}
	return res, nil
}

// Granger tests lags 1..maxLag after confirming both inputs are stationary. Lags without
// enough degrees of freedom are skipped; none testable is ErrInsufficientHistory, as is a
// series too short for the stationarity check.
func Granger(x, y []float64, maxLag, adfLags int) ([]models.LagResult, error) {
	for _, s := range [][]float64{x, y} {
		r, err := ADF(s, adfLags)
		if errors.Is(err, errDegenerate) || errors.Is(err, models.ErrInsufficientHistory) {
			return nil, err
		}
		if err != nil || !r.Stationary {
			return nil, models.ErrNonStationarySeries
		}
	}
	var out []models.LagResult
	for p := 1; p <= maxLag; p++ {
		r, err := GrangerAt(x, y, p)
		if errors.Is(err, models.ErrInsufficientHistory) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, models.ErrInsufficientHistory
	}
	return out, nil
}

// Bonferroni returns the smallest lag p-value times the number of lags, capped at 1.
func Bonferroni(lags []models.LagResult) (float64, int) {
	best := 0
	for i, l := range lags {
		if l.PValue < lags[best].PValue {
			best = i
		}
	}
	return math.Min(1, lags[best].PValue*float64(len(lags))), lags[best].Lag
}
