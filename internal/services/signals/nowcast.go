package signals

import (
	"sort"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/services/features"
)

// Predictor is a candidate series already screened against the target.
type Predictor struct {
	Type      models.SignalType
	Events    []models.SignalEvent
	Screening models.CausalityResult
}

// Nowcaster fits y_t = b0 + sum_j b_j x_{j,t-1} over accepted predictors.
type Nowcaster struct {
	minObservations int
}

func NewNowcaster(minObservations int) *Nowcaster {
	if minObservations < 4 {
		minObservations = 8
	}
	return &Nowcaster{minObservations: minObservations}
}

// Estimate produces the next-period estimate of target. Only predictors whose
// screening is PREDICTIVE are used.
func (n *Nowcaster) Estimate(ticker string, targetType models.SignalType, target []models.SignalEvent, predictors []Predictor, freq models.Frequency) models.Nowcast {
	out := models.Nowcast{Ticker: ticker, Target: targetType, Frequency: freq, Inputs: []models.NowcastInput{}}

	var accepted []Predictor
	for _, p := range predictors {
		out.Screened = append(out.Screened, p.Screening)
		if p.Screening.Predictive() {
			accepted = append(accepted, p)
		}
	}
	if len(accepted) == 0 {
		out.Status = models.NowcastNoPredictiveSignals
		return out
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Type < accepted[j].Type })

	// each predictor is shifted one period so row t pairs y_t with x_{t-1} exactly
	series := []features.Series{features.Resample(target, freq)}
	preds := make([]features.Series, 0, len(accepted))
	for _, p := range accepted {
		s := features.Resample(p.Events, freq)
		series = append(series, s.Shift(freq))
		preds = append(preds, s)
	}
	aligned := features.Align(series...)
	y := aligned[0].Values

	k := len(accepted) + 1
	rows := make([][]float64, 0, len(y))
	ys := make([]float64, 0, len(y))
	for t := range y {
		row := make([]float64, 0, k)
		row = append(row, 1)
		for j := range accepted {
			row = append(row, aligned[j+1].Values[t])
		}
		rows = append(rows, row)
		ys = append(ys, y[t])
	}
	out.Observations = len(ys)
	if len(ys) < n.minObservations || len(ys) <= k {
		out.Status = models.NowcastInsufficientHistory
		return out
	}

	f, err := ols(rows, ys, false)
	if err != nil {
		out.Status = models.NowcastInsufficientHistory
		return out
	}

	// latest bucket observed by every predictor, which may run ahead of the target
	latest := features.Align(preds...)
	if latest[0].Len() == 0 {
		out.Status = models.NowcastInsufficientHistory
		return out
	}
	last := latest[0].Len() - 1
	period := latest[0].Periods[last]

	estimate := f.Beta[0]
	for j, p := range accepted {
		x := latest[j].Values[last]
		estimate += f.Beta[j+1] * x
		pv := 1.0
		if p.Screening.PValue != nil {
			pv = *p.Screening.PValue
		}
		out.Inputs = append(out.Inputs, models.NowcastInput{
			SignalType:  p.Type,
			PValue:      pv,
			Coefficient: f.Beta[j+1],
			LatestValue: x,
		})
	}
	out.Status = models.NowcastEstimated
	out.Estimate = &estimate
	out.Intercept = f.Beta[0]
	out.RSquared = f.RSquared()
	out.Period = features.NextPeriod(period, freq)
	return out
}

