package signals

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func series(ticker string, st models.SignalType, step time.Duration, values ...float64) []models.SignalEvent {
	out := make([]models.SignalEvent, len(values))
	for i, v := range values {
		out[i] = models.SignalEvent{Ticker: ticker, SignalType: st, Value: v, CreatedAt: base.Add(time.Duration(i) * step)}
	}
	return out
}

func TestNVDAHiringSpikeZScore(t *testing.T) {
	values := make([]float64, 0, 96)
	for i := 0; i < 47; i++ {
		values = append(values, 35, 45)
	}
	values = append(values, 40, 55)
	events := series("NVDA", models.SignalHiringSpike, 12*time.Hour, values...)
	last := events[len(events)-1]

	scores := NewScorer(DefaultAnomalyConfig()).Score(events, last.CreatedAt)
	require.Len(t, scores, 1)
	sc := scores[0]
	assert.Equal(t, models.AnomalyScored, sc.Status)
	assert.Equal(t, 95, sc.History)
	assert.InDelta(t, 40.0, sc.Mean, 1e-9)
	assert.InDelta(t, 5.0, sc.StdDev, 1e-9)
	require.NotNil(t, sc.Z)
	assert.InDelta(t, 3.0, *sc.Z, 1e-9)
	assert.True(t, sc.Anomalous)
}

func TestScoreNeedsMinimumHistory(t *testing.T) {
	s := NewScorer(DefaultAnomalyConfig())
	values := []float64{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 9, 9}
	events := series("AAPL", models.SignalAppRank, 24*time.Hour, values...)

	scores := s.Score(events, base)
	require.Len(t, scores, len(events))
	for i, sc := range scores[:14] {
		assert.Equal(t, models.AnomalyInsufficientHistory, sc.Status, "event %d", i)
		assert.Nil(t, sc.Z)
		assert.False(t, sc.Anomalous)
	}
	assert.Equal(t, models.AnomalyScored, scores[14].Status)
	assert.Equal(t, 14, scores[14].History)
}

func TestScoreFlatWindow(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 7
	}
	values = append(values, 100)
	events := series("TSM", models.SignalShippingVolume, 24*time.Hour, values...)
	scores := NewScorer(DefaultAnomalyConfig()).Score(events, events[20].CreatedAt)
	require.Len(t, scores, 1)
	assert.Equal(t, models.AnomalyFlat, scores[0].Status)
	assert.Nil(t, scores[0].Z)
}

func TestScoreWindowExcludesOldAndSimultaneousEvents(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i % 3)
	}
	events := series("TSM", models.SignalShippingVolume, 24*time.Hour, values...)
	late := base.Add(200 * 24 * time.Hour)
	events = append(events,
		models.SignalEvent{Ticker: "TSM", SignalType: models.SignalShippingVolume, Value: 5, CreatedAt: late},
		models.SignalEvent{Ticker: "TSM", SignalType: models.SignalShippingVolume, Value: 6, CreatedAt: late},
	)
	scores := NewScorer(DefaultAnomalyConfig()).Score(events, late)
	require.Len(t, scores, 2)
	for _, sc := range scores {
		assert.Equal(t, 0, sc.History)
		assert.Equal(t, models.AnomalyInsufficientHistory, sc.Status)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 120)
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	events := series("MSFT", models.SignalWebTraffic, 24*time.Hour, values...)
	s := NewScorer(DefaultAnomalyConfig())
	assert.Equal(t, s.Score(events, base), s.Score(events, base))
}

// confirming builds x as white noise and y_t = 0.9 x_{t-1} + small noise.
func confirming(n int, seed int64) (x, y []float64) {
	rng := rand.New(rand.NewSource(seed))
	x = make([]float64, n)
	y = make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
		if i > 0 {
			y[i] = 0.9*x[i-1] + 0.1*rng.NormFloat64()
		}
	}
	return x, y
}

func TestCausalityAcceptsConfirmingData(t *testing.T) {
	tester := NewTester(DefaultCausalityConfig())
	x, y := confirming(200, 11)

	// acceptance must survive every extension of the confirming sample
	for _, n := range []int{40, 60, 90, 120, 200} {
		res := tester.Test(
			series("NVDA", models.SignalHiringSpike, 24*time.Hour, x[:n]...),
			series("NVDA", models.SignalPrice, 24*time.Hour, y[:n]...),
			models.FrequencyDaily, 4)
		require.Equal(t, models.CausalityPredictive, res.Status, "n=%d", n)
		require.NotNil(t, res.PValue)
		assert.Less(t, *res.PValue, 0.05)
		assert.Equal(t, 0, res.Differenced)
		assert.Len(t, res.Lags, 4)
		assert.Equal(t, models.SignalHiringSpike, res.Candidate)
		assert.Equal(t, models.SignalPrice, res.Reference)
	}
}

func TestCausalityBonferroniCapsAtOne(t *testing.T) {
	p, lag := Bonferroni([]models.LagResult{{Lag: 1, PValue: 0.4}, {Lag: 2, PValue: 0.3}, {Lag: 3, PValue: 0.9}})
	assert.InDelta(t, 0.9, p, 1e-12)
	assert.Equal(t, 2, lag)
	p, _ = Bonferroni([]models.LagResult{{Lag: 1, PValue: 0.6}, {Lag: 2, PValue: 0.7}})
	assert.Equal(t, 1.0, p)
}

func trending(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + 1 + rng.NormFloat64()
	}
	return out
}

func TestCausalityNonStationary(t *testing.T) {
	cand := series("AMZN", models.SignalWebTraffic, 24*time.Hour, trending(120, 1)...)
	ref := series("AMZN", models.SignalPrice, 24*time.Hour, trending(120, 2)...)

	res := NewTester(CausalityConfig{MaxDiff: 0}).Test(cand, ref, models.FrequencyDaily, 4)
	assert.Equal(t, models.CausalityNonStationary, res.Status)
	assert.Nil(t, res.PValue)

	res = NewTester(CausalityConfig{MaxDiff: 1}).Test(cand, ref, models.FrequencyDaily, 4)
	assert.NotEqual(t, models.CausalityNonStationary, res.Status)
	assert.Equal(t, 1, res.Differenced)
	assert.NotNil(t, res.PValue)
}

func TestGrangerRefusesNonStationaryInput(t *testing.T) {
	_, err := Granger(trending(100, 5), trending(100, 6), 2, 1)
	assert.ErrorIs(t, err, models.ErrNonStationarySeries)
}

func TestCausalityInsufficientHistory(t *testing.T) {
	x, y := confirming(8, 1)
	res := NewTester(DefaultCausalityConfig()).Test(
		series("X", models.SignalAppRank, 24*time.Hour, x...),
		series("X", models.SignalPrice, 24*time.Hour, y...),
		models.FrequencyDaily, 4)
	assert.Equal(t, models.CausalityInsufficientHistory, res.Status)
	assert.Nil(t, res.PValue)
}

// weekly lays values out one per week and keeps those where keep(i) holds.
func weekly(st models.SignalType, values []float64, keep func(int) bool) []models.SignalEvent {
	var out []models.SignalEvent
	for i, v := range values {
		if keep(i) {
			out = append(out, models.SignalEvent{Ticker: "AMD", SignalType: st, Value: v, CreatedAt: base.AddDate(0, 0, 7*i)})
		}
	}
	return out
}

func TestCausalityCountsLagsInPeriods(t *testing.T) {
	const n = 160
	x, _ := confirming(n, 29)
	y := make([]float64, n)
	for i := 2; i < n; i++ {
		y[i] = x[i-2]
	}
	all := func(int) bool { return true }
	even := func(i int) bool { return i%2 == 0 }
	tester := NewTester(DefaultCausalityConfig())

	res := tester.Test(weekly(models.SignalWebTraffic, x, all), weekly(models.SignalPrice, y, all), models.FrequencyWeekly, 2)
	require.Equal(t, models.CausalityPredictive, res.Status)
	assert.Equal(t, 2, res.BestLag)

	// observed every other week the two-week lag must not pass as a one-period lag
	res = tester.Test(weekly(models.SignalWebTraffic, x, even), weekly(models.SignalPrice, y, even), models.FrequencyWeekly, 1)
	assert.Equal(t, models.CausalityInsufficientHistory, res.Status)
	assert.Equal(t, 1, res.Observations)
	assert.Nil(t, res.PValue)
}

func TestCausalityShortSeriesIsInsufficientHistory(t *testing.T) {
	x, y := confirming(6, 4)
	res := NewTester(CausalityConfig{ADFLags: 1, MinObservations: 3}).Test(
		series("X", models.SignalAppRank, 24*time.Hour, x...),
		series("X", models.SignalPrice, 24*time.Hour, y...),
		models.FrequencyDaily, 1)
	assert.Equal(t, models.CausalityInsufficientHistory, res.Status)
	assert.Nil(t, res.PValue)
}

func TestADFRejectsShortInput(t *testing.T) {
	for _, x := range [][]float64{nil, {1}, {1, 2, 3, 4, 5, 6}} {
		_, err := ADF(x, 1)
		assert.ErrorIs(t, err, models.ErrInsufficientHistory, "len %d", len(x))
	}
	_, err := Granger([]float64{1, 2, 1}, []float64{2, 1, 2}, 1, 1)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestCausalityConstantCandidateIsUnproven(t *testing.T) {
	_, y := confirming(60, 9)
	flat := make([]float64, 60)
	res := NewTester(DefaultCausalityConfig()).Test(
		series("X", models.SignalAppRank, 24*time.Hour, flat...),
		series("X", models.SignalPrice, 24*time.Hour, y...),
		models.FrequencyDaily, 2)
	assert.Equal(t, models.CausalityUnproven, res.Status)
	require.NotNil(t, res.PValue)
	assert.Equal(t, 1.0, *res.PValue)
}

func TestADF(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	noise := make([]float64, 200)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	r, err := ADF(noise, 1)
	require.NoError(t, err)
	assert.True(t, r.Stationary)
	assert.InDelta(t, -2.8621-2.738/float64(r.N)-8.36/float64(r.N*r.N), r.Critical, 1e-12)

	r, err = ADF(trending(200, 4), 1)
	require.NoError(t, err)
	assert.False(t, r.Stationary)
}

func TestNowcastFromPredictiveSignal(t *testing.T) {
	const n = 80
	x, _ := confirming(n, 17)
	y := make([]float64, n)
	for i := 1; i < n; i++ {
		y[i] = 100 + 4*x[i-1]
	}
	hiring := series("NVDA", models.SignalHiringSpike, 24*time.Hour, x...)
	// one more predictor observation than the target has
	hiring = append(hiring, models.SignalEvent{Ticker: "NVDA", SignalType: models.SignalHiringSpike, Value: 2, CreatedAt: base.Add(n * 24 * time.Hour)})
	revenue := series("NVDA", models.SignalRevenue, 24*time.Hour, y...)
	p := 0.001

	nc := NewNowcaster(8).Estimate("NVDA", models.SignalRevenue, revenue, []Predictor{
		{Type: models.SignalHiringSpike, Events: hiring, Screening: models.CausalityResult{Status: models.CausalityPredictive, PValue: &p}},
		{Type: models.SignalAppRank, Screening: models.CausalityResult{Status: models.CausalityUnproven}},
	}, models.FrequencyDaily)

	require.Equal(t, models.NowcastEstimated, nc.Status)
	require.NotNil(t, nc.Estimate)
	assert.InDelta(t, 108.0, *nc.Estimate, 1e-6)
	assert.InDelta(t, 1.0, nc.RSquared, 1e-9)
	assert.Equal(t, base.Add((n+1)*24*time.Hour), nc.Period)
	require.Len(t, nc.Inputs, 1)
	assert.Equal(t, models.SignalHiringSpike, nc.Inputs[0].SignalType)
	assert.InDelta(t, 4.0, nc.Inputs[0].Coefficient, 1e-6)
	assert.Len(t, nc.Screened, 2)
}

func TestNowcastNeedsThePrecedingPeriod(t *testing.T) {
	const n = 80
	x, _ := confirming(n, 31)
	y := make([]float64, n)
	for i := 1; i < n; i++ {
		y[i] = 100 + 4*x[i-1]
	}
	even := func(i int) bool { return i%2 == 0 }
	p := 0.001

	nc := NewNowcaster(8).Estimate("AMD", models.SignalRevenue, weekly(models.SignalRevenue, y, even), []Predictor{
		{Type: models.SignalWebTraffic, Events: weekly(models.SignalWebTraffic, x, even), Screening: models.CausalityResult{Status: models.CausalityPredictive, PValue: &p}},
	}, models.FrequencyWeekly)

	assert.Equal(t, models.NowcastInsufficientHistory, nc.Status)
	assert.Equal(t, 0, nc.Observations)
	assert.Nil(t, nc.Estimate)
}

func TestNowcastWithoutPredictiveSignals(t *testing.T) {
	nc := NewNowcaster(8).Estimate("NVDA", models.SignalRevenue, nil, []Predictor{
		{Type: models.SignalAppRank, Screening: models.CausalityResult{Status: models.CausalityUnproven}},
	}, models.FrequencyQuarterly)
	assert.Equal(t, models.NowcastNoPredictiveSignals, nc.Status)
	assert.Nil(t, nc.Estimate)
}
