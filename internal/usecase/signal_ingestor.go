package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	applogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/util"
)

// IngestResult is the stored event plus its anomaly score at ingestion time.
type IngestResult struct {
	Event models.SignalEvent  `json:"event"`
	Score models.AnomalyScore `json:"score"`
}

// SignalIngestor appends events to the log and alerts on anomalous ones.
type SignalIngestor struct {
	store   domrepo.SignalStore
	engine  *SignalEngine
	alerts  domrepo.AlertPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

func NewSignalIngestor(store domrepo.SignalStore, engine *SignalEngine, alerts domrepo.AlertPublisher, metrics domrepo.Metrics, l *applogger.Logger) *SignalIngestor {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalIngestor{
		store:   store,
		engine:  engine,
		alerts:  alerts,
		metrics: metrics,
		log:     l.Component("ingestor"),
		now:     time.Now,
	}
}

// FromRequest converts an API or Kafka payload into an event.
func (s *SignalIngestor) FromRequest(req models.IngestSignalRequest) (models.SignalEvent, error) {
	ev := models.SignalEvent{
		Ticker:     req.Ticker,
		SignalType: models.SignalType(strings.ToUpper(strings.TrimSpace(req.SignalType))),
		Metadata:   req.Metadata,
		SourceURL:  req.SourceURL,
	}
	if req.Value == nil {
		return ev, models.NewValidationError("value", "is required")
	}
	ev.Value = *req.Value
	if req.Timestamp != "" {
		ts, ok := util.ParseTime(req.Timestamp)
		if !ok {
			return ev, models.NewValidationError("timestamp", fmt.Sprintf("unrecognized time %q", req.Timestamp))
		}
		ev.CreatedAt = ts
	}
	return ev, nil
}

func (s *SignalIngestor) validate(ev *models.SignalEvent) error {
	ev.Ticker = models.NormalizeTicker(ev.Ticker)
	if ev.Ticker == "" {
		return models.NewValidationError("ticker", "is required")
	}
	if !ev.SignalType.Valid() {
		return models.NewValidationError("signal_type", fmt.Sprintf("%q is not an upper snake case type", ev.SignalType))
	}
	if math.IsNaN(ev.Value) || math.IsInf(ev.Value, 0) {
		return models.NewValidationError("value", "must be finite")
	}
	if ev.SignalID == "" {
		ev.SignalID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC().Truncate(time.Microsecond)
	return nil
}

// Ingest stores ev and scores it against the partition's trailing window.
// A failed alert publish is logged and does not fail ingestion. When the history
// read fails the stored event is returned with status SCORE_UNAVAILABLE.
func (s *SignalIngestor) Ingest(ctx context.Context, ev models.SignalEvent) (IngestResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("ingest", time.Since(start).Seconds()) }()

	if err := s.validate(&ev); err != nil {
		s.metrics.RecordError("validation")
		return IngestResult{}, err
	}
	if err := s.store.Append(ctx, ev); err != nil {
		s.metrics.RecordError("store")
		return IngestResult{}, fmt.Errorf("append %s/%s: %w", ev.Ticker, ev.SignalType, err)
	}
	s.metrics.RecordSignalIngested(string(ev.SignalType))

	res := IngestResult{Event: ev}
	score, err := s.engine.ScoreLatest(ctx, ev)
	if err != nil {
		s.metrics.RecordError("score")
		s.log.Warn("score after ingest failed",
			applogger.String("ticker", ev.Ticker),
			applogger.String("signal_type", string(ev.SignalType)),
			applogger.Error(err))
		res.Score = models.AnomalyScore{Event: ev, Status: models.AnomalyUnavailable, Reason: err.Error()}
		return res, nil
	}
	res.Score = score

	if score.Anomalous {
		s.metrics.RecordAnomaly(string(ev.SignalType))
		s.log.Info("anomaly detected",
			applogger.String("ticker", ev.Ticker),
			applogger.String("signal_type", string(ev.SignalType)),
			applogger.Float64("z", *score.Z))
		if s.alerts != nil {
			if err := s.alerts.PublishAnomaly(ctx, score); err != nil {
				s.metrics.RecordError("alert")
				s.log.Error("publish anomaly failed", applogger.String("signal_id", ev.SignalID), applogger.Error(err))
			}
		}
	}
	return res, nil
}

// IngestRequest is FromRequest followed by Ingest.
func (s *SignalIngestor) IngestRequest(ctx context.Context, req models.IngestSignalRequest) (IngestResult, error) {
	ev, err := s.FromRequest(req)
	if err != nil {
		return IngestResult{}, err
	}
	return s.Ingest(ctx, ev)
}
