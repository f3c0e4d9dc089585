package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/domain/service"
	enginemetrics "AlphaNebula/internal/service/metrics"
	"AlphaNebula/internal/services/signals"
	applogger "AlphaNebula/pkg/logger"
)

var engineTracer = otel.Tracer("alphanebula.usecase.engine")

// EngineConfig bounds the read side of the signal engine.
type EngineConfig struct {
	Anomaly           signals.AnomalyConfig
	Causality         signals.CausalityConfig
	QueryLookback     time.Duration
	CausalityLookback time.Duration
	MaxEvents         int
	MinNowcastObs     int
	MaxLag            int
	Frequency         models.Frequency
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Anomaly:           signals.DefaultAnomalyConfig(),
		Causality:         signals.DefaultCausalityConfig(),
		QueryLookback:     90 * 24 * time.Hour,
		CausalityLookback: 2 * 365 * 24 * time.Hour,
		MaxEvents:         100000,
		MinNowcastObs:     8,
		MaxLag:            4,
		Frequency:         models.FrequencyWeekly,
	}
}

// SignalEngine answers anomaly, causality and nowcast questions over the event log.
type SignalEngine struct {
	store     domrepo.SignalStore
	scorer    *signals.Scorer
	tester    *signals.Tester
	nowcaster *signals.Nowcaster
	cfg       EngineConfig
	log       *applogger.Logger
	now       func() time.Time
}

func NewSignalEngine(store domrepo.SignalStore, l *applogger.Logger, cfg EngineConfig) *SignalEngine {
	d := DefaultEngineConfig()
	if cfg.QueryLookback <= 0 {
		cfg.QueryLookback = d.QueryLookback
	}
	if cfg.CausalityLookback <= 0 {
		cfg.CausalityLookback = d.CausalityLookback
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = d.MaxEvents
	}
	if cfg.MaxLag <= 0 {
		cfg.MaxLag = d.MaxLag
	}
	if !cfg.Frequency.Valid() {
		cfg.Frequency = d.Frequency
	}
	if l == nil {
		l = applogger.Nop()
	}
	enginemetrics.Register()
	return &SignalEngine{
		store:     store,
		scorer:    signals.NewScorer(cfg.Anomaly),
		tester:    signals.NewTester(cfg.Causality),
		nowcaster: signals.NewNowcaster(cfg.MinNowcastObs),
		cfg:       cfg,
		log:       l.Component("engine"),
		now:       time.Now,
	}
}

var _ service.SignalEngine = (*SignalEngine)(nil)

// Scorer exposes the anomaly scorer shared with ingestion.
func (e *SignalEngine) Scorer() *signals.Scorer { return e.scorer }

func (e *SignalEngine) observe(op string, start time.Time) {
	enginemetrics.EngineLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// window fills a missing range with the default lookback ending now.
func (e *SignalEngine) window(q models.SignalQuery) models.SignalQuery {
	q.Ticker = models.NormalizeTicker(q.Ticker)
	if q.To.IsZero() {
		q.To = e.now().UTC()
	}
	if q.From.IsZero() {
		q.From = q.To.Add(-e.cfg.QueryLookback)
	}
	if q.Limit <= 0 || q.Limit > e.cfg.MaxEvents {
		q.Limit = e.cfg.MaxEvents
	}
	return q
}

// Events returns events in the window ordered by created_at. No events is an empty slice.
func (e *SignalEngine) Events(ctx context.Context, q models.SignalQuery) ([]models.SignalEvent, error) {
	defer e.observe("events", time.Now())
	q = e.window(q)
	if !q.From.Before(q.To) {
		return []models.SignalEvent{}, nil
	}
	events, err := e.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("events %s: %w", q.Ticker, err)
	}
	if events == nil {
		events = []models.SignalEvent{}
	}
	return events, nil
}

// Anomalies scores every event in the window against its own trailing window and
// keeps the anomalous ones.
func (e *SignalEngine) Anomalies(ctx context.Context, q models.SignalQuery) ([]models.AnomalyScore, error) {
	ctx, span := engineTracer.Start(ctx, "Anomalies", trace.WithAttributes(attribute.String("ticker", q.Ticker)))
	defer span.End()
	defer e.observe("anomalies", time.Now())

	q = e.window(q)
	out := []models.AnomalyScore{}
	if !q.From.Before(q.To) {
		return out, nil
	}
	hq := q
	hq.From = q.From.Add(-e.scorer.Config().Window)
	history, err := e.store.Query(ctx, hq)
	if err != nil {
		return nil, fmt.Errorf("anomalies %s: %w", q.Ticker, err)
	}

	for _, part := range partition(history) {
		for _, sc := range e.scorer.Score(part, q.From) {
			if sc.Anomalous {
				out = append(out, sc)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Event, out[j].Event
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.SignalID < b.SignalID
	})
	span.SetAttributes(attribute.Int("anomalies", len(out)))
	return out, nil
}

// ScoreLatest scores ev against the stored history of its partition. A window holding
// more than MaxEvents events keeps the most recent ones, ev among them.
func (e *SignalEngine) ScoreLatest(ctx context.Context, ev models.SignalEvent) (models.AnomalyScore, error) {
	history, err := e.store.Query(ctx, models.SignalQuery{
		Ticker:      ev.Ticker,
		SignalTypes: []models.SignalType{ev.SignalType},
		From:        ev.CreatedAt.Add(-e.scorer.Config().Window),
		To:          ev.CreatedAt.Add(time.Microsecond),
		Limit:       e.cfg.MaxEvents,
		Newest:      true,
	})
	if err != nil {
		return models.AnomalyScore{}, fmt.Errorf("score history %s/%s: %w", ev.Ticker, ev.SignalType, err)
	}
	for _, sc := range e.scorer.Score(history, ev.CreatedAt) {
		if sc.Event.SignalID == ev.SignalID {
			return sc, nil
		}
	}
	return models.AnomalyScore{Event: ev, Status: models.AnomalyInsufficientHistory}, nil
}

func (e *SignalEngine) series(ctx context.Context, ticker string, st models.SignalType) ([]models.SignalEvent, error) {
	to := e.now().UTC()
	return e.store.Query(ctx, models.SignalQuery{
		Ticker:      models.NormalizeTicker(ticker),
		SignalTypes: []models.SignalType{st},
		From:        to.Add(-e.cfg.CausalityLookback),
		To:          to,
		Limit:       e.cfg.MaxEvents,
	})
}

// Causality screens whether candidate Granger-causes reference for ticker.
func (e *SignalEngine) Causality(ctx context.Context, ticker string, candidate, reference models.SignalType, freq models.Frequency, maxLag int) (models.CausalityResult, error) {
	ctx, span := engineTracer.Start(ctx, "Causality", trace.WithAttributes(
		attribute.String("ticker", ticker),
		attribute.String("candidate", string(candidate)),
		attribute.String("reference", string(reference)),
	))
	defer span.End()
	defer e.observe("causality", time.Now())
	if maxLag <= 0 {
		maxLag = e.cfg.MaxLag
	}
	if !freq.Valid() {
		freq = e.cfg.Frequency
	}

	var cand, ref []models.SignalEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cand, err = e.series(gctx, ticker, candidate)
		return err
	})
	g.Go(func() (err error) {
		ref, err = e.series(gctx, ticker, reference)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.CausalityResult{}, fmt.Errorf("causality %s: %w", ticker, err)
	}

	res := e.tester.Test(cand, ref, freq, maxLag)
	res.Ticker = models.NormalizeTicker(ticker)
	res.Candidate, res.Reference = candidate, reference
	enginemetrics.CausalityVerdicts.WithLabelValues(string(res.Status)).Inc()
	span.SetAttributes(attribute.String("status", string(res.Status)))
	return res, nil
}

// Nowcast screens each candidate against target concurrently and regresses target on
// the lagged values of those found predictive.
func (e *SignalEngine) Nowcast(ctx context.Context, ticker string, target models.SignalType, candidates []models.SignalType, freq models.Frequency) (models.Nowcast, error) {
	ctx, span := engineTracer.Start(ctx, "Nowcast", trace.WithAttributes(
		attribute.String("ticker", ticker),
		attribute.String("target", string(target)),
	))
	defer span.End()
	defer e.observe("nowcast", time.Now())
	if !freq.Valid() {
		freq = e.cfg.Frequency
	}

	targetEvents, err := e.series(ctx, ticker, target)
	if err != nil {
		return models.Nowcast{}, fmt.Errorf("nowcast target %s: %w", target, err)
	}

	predictors := make([]signals.Predictor, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range candidates {
		g.Go(func() error {
			events, err := e.series(gctx, ticker, c)
			if err != nil {
				return fmt.Errorf("nowcast candidate %s: %w", c, err)
			}
			res := e.tester.Test(events, targetEvents, freq, e.cfg.MaxLag)
			res.Ticker = models.NormalizeTicker(ticker)
			res.Candidate, res.Reference = c, target
			predictors[i] = signals.Predictor{Type: c, Events: events, Screening: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Nowcast{}, err
	}

	nc := e.nowcaster.Estimate(models.NormalizeTicker(ticker), target, targetEvents, predictors, freq)
	enginemetrics.NowcastOutcomes.WithLabelValues(string(nc.Status)).Inc()
	span.SetAttributes(attribute.String("status", string(nc.Status)), attribute.Int("inputs", len(nc.Inputs)))
	return nc, nil
}

// Freshness reports whether the latest event of the series is younger than ttl.
func (e *SignalEngine) Freshness(ctx context.Context, ticker string, signalType models.SignalType, ttl time.Duration) (models.Freshness, error) {
	defer e.observe("freshness", time.Now())
	ticker = models.NormalizeTicker(ticker)
	latest, err := e.store.Latest(ctx, ticker, signalType)
	if err != nil {
		return models.Freshness{}, fmt.Errorf("latest %s/%s: %w", ticker, signalType, err)
	}
	f := models.Freshness{Ticker: ticker, SignalType: signalType, Latest: latest}
	if latest != nil {
		age := e.now().Sub(latest.CreatedAt)
		f.Age = age.Truncate(time.Second).String()
		f.Fresh = age >= 0 && age < ttl
	}
	return f, nil
}

// partition splits an ordered log by signal type, keeping order within each type.
func partition(events []models.SignalEvent) [][]models.SignalEvent {
	idx := make(map[models.SignalType]int)
	var out [][]models.SignalEvent
	for _, ev := range events {
		i, ok := idx[ev.SignalType]
		if !ok {
			i = len(out)
			idx[ev.SignalType] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], ev)
	}
	return out
}
