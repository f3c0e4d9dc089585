package repository

import (
	"context"
	"fmt"
	"time"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	"AlphaNebula/pkg/kafka"
	applogger "AlphaNebula/pkg/logger"
)

// AnomalyAlert is the payload written to the alerts topic.
type AnomalyAlert struct {
	Ticker     string            `json:"ticker"`
	SignalType models.SignalType `json:"signal_type"`
	SignalID   string            `json:"signal_id"`
	Value      float64           `json:"value"`
	Z          float64           `json:"z"`
	Mean       float64           `json:"mean"`
	StdDev     float64           `json:"stddev"`
	History    int               `json:"history"`
	ObservedAt time.Time         `json:"observed_at"`
	SourceURL  string            `json:"source_url,omitempty"`
}

// KafkaAlertPublisher publishes anomalies keyed by ticker so one ticker's alerts stay ordered.
type KafkaAlertPublisher struct {
	pub   kafka.Publisher
	topic string
	l     *applogger.Logger
}

func NewKafkaAlertPublisher(pub kafka.Publisher, topic string, l *applogger.Logger) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{pub: pub, topic: topic, l: l.Component("alerts")}
}

var _ repository.AlertPublisher = (*KafkaAlertPublisher)(nil)

// PublishAnomaly ignores scores that are not anomalous.
func (p *KafkaAlertPublisher) PublishAnomaly(ctx context.Context, score models.AnomalyScore) error {
	if !score.Anomalous || score.Z == nil {
		return nil
	}
	alert := AnomalyAlert{
		Ticker:     score.Event.Ticker,
		SignalType: score.Event.SignalType,
		SignalID:   score.Event.SignalID,
		Value:      score.Event.Value,
		Z:          *score.Z,
		Mean:       score.Mean,
		StdDev:     score.StdDev,
		History:    score.History,
		ObservedAt: score.Event.CreatedAt,
		SourceURL:  score.Event.SourceURL,
	}
	if err := p.pub.Publish(ctx, p.topic, []byte(alert.Ticker), alert); err != nil {
		return fmt.Errorf("publish anomaly %s/%s: %w", alert.Ticker, alert.SignalType, err)
	}
	p.l.Info("anomaly alert published",
		applogger.String("ticker", alert.Ticker),
		applogger.String("signal_type", string(alert.SignalType)),
		applogger.Float64("z", alert.Z))
	return nil
}

func (p *KafkaAlertPublisher) Close() error {
	return p.pub.Close()
}

// LogAlertPublisher is used when Kafka is disabled; alerts only reach the log.
type LogAlertPublisher struct {
	l *applogger.Logger
}

func NewLogAlertPublisher(l *applogger.Logger) *LogAlertPublisher {
	return &LogAlertPublisher{l: l.Component("alerts")}
}

var _ repository.AlertPublisher = (*LogAlertPublisher)(nil)

func (p *LogAlertPublisher) PublishAnomaly(_ context.Context, score models.AnomalyScore) error {
	if !score.Anomalous || score.Z == nil {
		return nil
	}
	p.l.Warn("anomaly",
		applogger.String("ticker", score.Event.Ticker),
		applogger.String("signal_type", string(score.Event.SignalType)),
		applogger.Float64("value", score.Event.Value),
		applogger.Float64("z", *score.Z))
	return nil
}

func (p *LogAlertPublisher) Close() error { return nil }
