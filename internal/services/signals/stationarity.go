package signals

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"AlphaNebula/internal/domain/models"
)

// errDegenerate marks a series with no variation to test.
var errDegenerate = errors.New("constant series")

// ADFResult is an augmented Dickey-Fuller test with a constant term.
type ADFResult struct {
	Stat       float64
	Critical   float64
	Lags       int
	N          int
	Stationary bool
}

// criticalValue5 is the MacKinnon (2010) 5% response surface for the constant-only case.
func criticalValue5(n int) float64 {
	t := float64(n)
	return -2.8621 - 2.738/t - 8.36/(t*t)
}

// ADF regresses dx_t on a constant, x_{t-1} and lags dx_{t-1..t-p} and compares the
// t-statistic of x_{t-1} with the 5% critical value. Rejecting the unit root means stationary.
// A series too short for the regression wraps models.ErrInsufficientHistory.
func ADF(x []float64, lags int) (ADFResult, error) {
	if lags < 0 {
		lags = 0
	}
	if need := 2*lags + 5; len(x) < need {
		return ADFResult{}, fmt.Errorf("adf needs %d points, got %d: %w", need, len(x), models.ErrInsufficientHistory)
	}
	dx := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		dx[i-1] = x[i] - x[i-1]
	}
	start := lags
	n := len(dx) - start
	if _, sd := stat.MeanStdDev(x, nil); sd == 0 {
		return ADFResult{}, errDegenerate
	}

	rows := make([][]float64, 0, n)
	y := make([]float64, 0, n)
	for t := start; t < len(dx); t++ {
		row := make([]float64, 0, lags+2)
		row = append(row, 1, x[t])
		for i := 1; i <= lags; i++ {
			row = append(row, dx[t-i])
		}
		rows = append(rows, row)
		y = append(y, dx[t])
	}

	f, err := ols(rows, y, true)
	if err != nil {
		return ADFResult{}, fmt.Errorf("adf regression: %w", err)
	}
	res := ADFResult{Lags: lags, N: n, Critical: criticalValue5(n)}
	if f.StdErr[1] == 0 || math.IsNaN(f.StdErr[1]) {
		// exact fit: the sign of the level coefficient decides
		res.Stat = math.Inf(1)
		if f.Beta[1] < 0 {
			res.Stat = math.Inf(-1)
		}
	} else {
		res.Stat = f.Beta[1] / f.StdErr[1]
	}
	res.Stationary = res.Stat < res.Critical
	return res, nil
}
