package usecase

import (
	"context"
	"encoding/json"
	"time"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	pkgkafka "AlphaNebula/pkg/kafka"
)

// KafkaSignalsHandler consumes raw signal events and ingests them.
type KafkaSignalsHandler struct {
	topic    string
	ingestor *SignalIngestor
	metrics  domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, ingestor *SignalIngestor, metrics domrepo.Metrics) *KafkaSignalsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaSignalsHandler{topic: topic, ingestor: ingestor, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema: {ticker, signal_type, value, timestamp, metadata, source_url}
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.IngestSignalRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}
	res, err := h.ingestor.IngestRequest(ctx, req)
	if err != nil {
		if models.IsValidation(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(res.Event.CreatedAt).Seconds())
	return nil
}

// KafkaMentionsHandler consumes RawMention payloads from scrapers.
type KafkaMentionsHandler struct {
	topic     string
	processor *MentionProcessor
	metrics   domrepo.Metrics
}

func NewKafkaMentionsHandler(topic string, processor *MentionProcessor, metrics domrepo.Metrics) *KafkaMentionsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaMentionsHandler{topic: topic, processor: processor, metrics: metrics}
}

func (h *KafkaMentionsHandler) Topic() string { return h.topic }

func (h *KafkaMentionsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.RawMention
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}
	if _, err := h.processor.Process(ctx, m); err != nil {
		if models.IsValidation(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaMentionsHandler)(nil)
)
