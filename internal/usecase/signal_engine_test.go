package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/repository"
	"AlphaNebula/pkg/database"
	pkgkafka "AlphaNebula/pkg/kafka"
	applogger "AlphaNebula/pkg/logger"
)

var t0 = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type captureAlerts struct {
	mu     sync.Mutex
	scores []models.AnomalyScore
	err    error
}

func (c *captureAlerts) PublishAnomaly(_ context.Context, s models.AnomalyScore) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.scores = append(c.scores, s)
	return nil
}

func (c *captureAlerts) Close() error { return nil }

func (c *captureAlerts) published() []models.AnomalyScore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.AnomalyScore(nil), c.scores...)
}

type engineFixture struct {
	store    *repository.SQLSignalStore
	engine   *SignalEngine
	ingestor *SignalIngestor
	alerts   *captureAlerts
}

func newEngineFixture(t *testing.T, now time.Time) *engineFixture {
	t.Helper()
	client, err := database.NewClient(database.WithDialect(database.DialectSQLite), database.WithDSN(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := repository.NewSQLSignalStore(client)
	require.NoError(t, store.Init(context.Background()))

	f := &engineFixture{store: store, alerts: &captureAlerts{}}
	f.engine = NewSignalEngine(store, applogger.Nop(), DefaultEngineConfig())
	f.engine.now = func() time.Time { return now }
	f.ingestor = NewSignalIngestor(store, f.engine, f.alerts, nil, applogger.Nop())
	f.ingestor.now = func() time.Time { return now }
	return f
}

func (f *engineFixture) appendSeries(t *testing.T, ticker string, st models.SignalType, step time.Duration, values ...float64) {
	t.Helper()
	events := make([]models.SignalEvent, len(values))
	for i, v := range values {
		events[i] = models.SignalEvent{
			SignalID:   ticker + "-" + string(st) + "-" + strconv.Itoa(i),
			Ticker:     ticker,
			SignalType: st,
			Value:      v,
			CreatedAt:  t0.Add(time.Duration(i) * step),
		}
	}
	require.NoError(t, f.store.Append(context.Background(), events...))
}

func hiringHistory() []float64 {
	values := make([]float64, 0, 96)
	for i := 0; i < 47; i++ {
		values = append(values, 35, 45)
	}
	return append(values, 40)
}

func TestIngestScoresAndPublishesAnomaly(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, t0.Add(60*24*time.Hour))
	f.appendSeries(t, "NVDA", models.SignalHiringSpike, 12*time.Hour, hiringHistory()...)

	res, err := f.ingestor.Ingest(ctx, models.SignalEvent{
		Ticker:     "nvda",
		SignalType: models.SignalHiringSpike,
		Value:      55,
		CreatedAt:  t0.Add(95 * 12 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", res.Event.Ticker)
	assert.NotEmpty(t, res.Event.SignalID)
	require.Equal(t, models.AnomalyScored, res.Score.Status)
	assert.Equal(t, 95, res.Score.History)
	require.NotNil(t, res.Score.Z)
	assert.InDelta(t, 3.0, *res.Score.Z, 1e-9)
	assert.True(t, res.Score.Anomalous)

	alerts := f.alerts.published()
	require.Len(t, alerts, 1)
	assert.Equal(t, res.Event.SignalID, alerts[0].Event.SignalID)

	anomalies, err := f.engine.Anomalies(ctx, models.SignalQuery{Ticker: "NVDA", From: t0, To: t0.Add(60 * 24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, res.Event.SignalID, anomalies[0].Event.SignalID)
}

// failingReads stores events but cannot read them back.
type failingReads struct {
	*repository.SQLSignalStore
	err error
}

func (f failingReads) Query(context.Context, models.SignalQuery) ([]models.SignalEvent, error) {
	return nil, f.err
}

func TestIngestReportsUnavailableScoreOnReadFailure(t *testing.T) {
	f := newEngineFixture(t, t0)
	store := failingReads{SQLSignalStore: f.store, err: errors.New("replica offline")}
	engine := NewSignalEngine(store, applogger.Nop(), DefaultEngineConfig())
	ingestor := NewSignalIngestor(store, engine, f.alerts, nil, applogger.Nop())

	res, err := ingestor.Ingest(context.Background(), models.SignalEvent{
		Ticker: "NVDA", SignalType: models.SignalHiringSpike, Value: 55, CreatedAt: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyUnavailable, res.Score.Status)
	assert.Contains(t, res.Score.Reason, "replica offline")
	assert.Nil(t, res.Score.Z)
	assert.Empty(t, f.alerts.published())

	stored, err := f.store.Latest(context.Background(), "NVDA", models.SignalHiringSpike)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Event.SignalID, stored.SignalID)
}

func TestScoreLatestKeepsNewestEventsWhenCapped(t *testing.T) {
	f := newEngineFixture(t, t0.Add(60*24*time.Hour))
	f.appendSeries(t, "NVDA", models.SignalHiringSpike, 12*time.Hour, hiringHistory()...)

	cfg := DefaultEngineConfig()
	cfg.MaxEvents = 20
	engine := NewSignalEngine(f.store, applogger.Nop(), cfg)
	ingestor := NewSignalIngestor(f.store, engine, f.alerts, nil, applogger.Nop())

	res, err := ingestor.Ingest(context.Background(), models.SignalEvent{
		Ticker: "NVDA", SignalType: models.SignalHiringSpike, Value: 55, CreatedAt: t0.Add(95 * 12 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.AnomalyScored, res.Score.Status)
	assert.Equal(t, 19, res.Score.History)
	assert.InDelta(t, 40.0, res.Score.Mean, 1e-9)
	require.NotNil(t, res.Score.Z)
	assert.InDelta(t, 3.0, *res.Score.Z, 1e-9)
}

func TestIngestSurvivesAlertFailure(t *testing.T) {
	f := newEngineFixture(t, t0.Add(60*24*time.Hour))
	f.alerts.err = errors.New("broker down")
	f.appendSeries(t, "NVDA", models.SignalHiringSpike, 12*time.Hour, hiringHistory()...)

	res, err := f.ingestor.Ingest(context.Background(), models.SignalEvent{
		Ticker: "NVDA", SignalType: models.SignalHiringSpike, Value: 55, CreatedAt: t0.Add(95 * 12 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, res.Score.Anomalous)

	events, err := f.engine.Events(context.Background(), models.SignalQuery{Ticker: "NVDA", From: t0, To: t0.Add(60 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, events, 96)
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	f := newEngineFixture(t, t0)
	ctx := context.Background()

	cases := map[string]models.SignalEvent{
		"missing ticker":   {SignalType: models.SignalPrice, Value: 1},
		"bad signal type":  {Ticker: "NVDA", SignalType: "hiring spike", Value: 1},
		"non finite value": {Ticker: "NVDA", SignalType: models.SignalPrice, Value: math.NaN()},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ingestor.Ingest(ctx, ev)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
		})
	}

	_, err := f.ingestor.IngestRequest(ctx, models.IngestSignalRequest{Ticker: "NVDA", SignalType: "PRICE"})
	assert.True(t, models.IsValidation(err))

	events, err := f.engine.Events(ctx, models.SignalQuery{Ticker: "NVDA", From: t0.Add(-time.Hour), To: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)
}

func TestIngestRequestParsesTimestamp(t *testing.T) {
	f := newEngineFixture(t, t0)
	v := 12.5
	res, err := f.ingestor.IngestRequest(context.Background(), models.IngestSignalRequest{
		Ticker: "tsm", SignalType: "shipping_volume", Value: &v, Timestamp: "2025-01-03T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SignalShippingVolume, res.Event.SignalType)
	assert.Equal(t, time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC), res.Event.CreatedAt)
	assert.Equal(t, models.AnomalyInsufficientHistory, res.Score.Status)
	assert.Nil(t, res.Score.Z)
}

func TestEventsDefaultWindowEndsNow(t *testing.T) {
	now := t0.Add(200 * 24 * time.Hour)
	f := newEngineFixture(t, now)
	f.appendSeries(t, "AAPL", models.SignalAppRank, 24*time.Hour, make([]float64, 200)...)

	events, err := f.engine.Events(context.Background(), models.SignalQuery{Ticker: "aapl"})
	require.NoError(t, err)
	assert.Len(t, events, 90)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].CreatedAt.Before(events[i].CreatedAt))
	}
}

func confirmingSeries(n int, seed int64) (x, y []float64) {
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

func TestEngineCausality(t *testing.T) {
	const n = 120
	f := newEngineFixture(t, t0.Add((n+1)*24*time.Hour))
	x, y := confirmingSeries(n, 11)
	f.appendSeries(t, "NVDA", models.SignalHiringSpike, 24*time.Hour, x...)
	f.appendSeries(t, "NVDA", models.SignalPrice, 24*time.Hour, y...)

	res, err := f.engine.Causality(context.Background(), "nvda", models.SignalHiringSpike, models.SignalPrice, models.FrequencyDaily, 4)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", res.Ticker)
	require.Equal(t, models.CausalityPredictive, res.Status)
	require.NotNil(t, res.PValue)
	assert.Less(t, *res.PValue, 0.05)

	res, err = f.engine.Causality(context.Background(), "NVDA", models.SignalWebTraffic, models.SignalPrice, models.FrequencyDaily, 0)
	require.NoError(t, err)
	assert.Equal(t, models.CausalityInsufficientHistory, res.Status)
	assert.Nil(t, res.PValue)
}

func TestEngineNowcast(t *testing.T) {
	const n = 80
	f := newEngineFixture(t, t0.Add((n+2)*24*time.Hour))
	x, _ := confirmingSeries(n, 17)
	rng := rand.New(rand.NewSource(5))
	y := make([]float64, n)
	for i := range y {
		y[i] = 100 + 0.01*rng.NormFloat64()
		if i > 0 {
			y[i] += 4 * x[i-1]
		}
	}
	f.appendSeries(t, "NVDA", models.SignalHiringSpike, 24*time.Hour, append(x, 2)...)
	f.appendSeries(t, "NVDA", models.SignalRevenue, 24*time.Hour, y...)

	nc, err := f.engine.Nowcast(context.Background(), "NVDA", models.SignalRevenue,
		[]models.SignalType{models.SignalHiringSpike, models.SignalAppRank}, models.FrequencyDaily)
	require.NoError(t, err)
	require.Equal(t, models.NowcastEstimated, nc.Status)
	require.NotNil(t, nc.Estimate)
	assert.InDelta(t, 108.0, *nc.Estimate, 0.1)
	assert.Equal(t, t0.Add((n+1)*24*time.Hour), nc.Period)
	require.Len(t, nc.Inputs, 1)
	assert.Equal(t, models.SignalHiringSpike, nc.Inputs[0].SignalType)
	require.Len(t, nc.Screened, 2)
	assert.Equal(t, models.CausalityInsufficientHistory, nc.Screened[1].Status)
}

func TestEngineFreshness(t *testing.T) {
	now := t0.Add(10 * 24 * time.Hour)
	f := newEngineFixture(t, now)
	f.appendSeries(t, "AAPL", models.SignalWebTraffic, 24*time.Hour, make([]float64, 10)...)

	fr, err := f.engine.Freshness(context.Background(), "AAPL", models.SignalWebTraffic, 36*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, fr.Latest)
	assert.True(t, fr.Fresh)
	assert.Equal(t, t0.Add(9*24*time.Hour), fr.Latest.CreatedAt)

	fr, err = f.engine.Freshness(context.Background(), "AAPL", models.SignalWebTraffic, 12*time.Hour)
	require.NoError(t, err)
	assert.False(t, fr.Fresh)

	fr, err = f.engine.Freshness(context.Background(), "AAPL", models.SignalRevenue, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, fr.Latest)
	assert.False(t, fr.Fresh)
}

func TestKafkaSignalsHandler(t *testing.T) {
	f := newEngineFixture(t, t0)
	h := NewKafkaSignalsHandler("signals.raw", f.ingestor, nil)
	assert.Equal(t, "signals.raw", h.Topic())

	err := h.Handle(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, pkgkafka.ErrPermanent)

	err = h.Handle(context.Background(), []byte(`{"ticker":"NVDA","signal_type":"PRICE"}`))
	assert.ErrorIs(t, err, pkgkafka.ErrPermanent)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"ticker":"NVDA","signal_type":"PRICE","value":101.5,"timestamp":"2025-01-05T00:00:00Z"}`)))
	latest, err := f.store.Latest(context.Background(), "NVDA", models.SignalPrice)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 101.5, latest.Value)
}
