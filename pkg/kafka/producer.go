package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is the write side used by alert fan-out and the DLQ.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []Message) error
	Close() error
}

// Message is one keyed payload. Value is JSON encoded unless it is []byte or string.
type Message struct {
	Key   []byte
	Value interface{}
}

// ProducerConfig configures NewProducer. Zero fields take the default tag.
// Compression is one of gzip, snappy, lz4, zstd or none. RoundRobin spreads
// messages over partitions instead of hashing the key.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int           `default:"-1"`
	Compression  string        `default:"snappy"`
	MaxAttempts  int           `default:"3"`
	WriteTimeout time.Duration `default:"10s"`
	BatchSize    int           `default:"100"`
	Linger       time.Duration `default:"10ms"`
	Async        bool
	RoundRobin   bool
}

// writer is the subset of *kafka.Writer the producer needs.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON payloads and stamps each message with the
// caller's trace id and a content type header.
type Producer struct {
	w    writer
	comp string
	now  func() time.Time
	once sync.Once
}

var _ Publisher = (*Producer)(nil)

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("kafka producer defaults: %w", err)
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var bal kafka.Balancer = &kafka.Hash{}
	if cfg.RoundRobin {
		bal = &kafka.RoundRobin{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}
	return newProducer(w, cfg.Compression), nil
}

func newProducer(w writer, comp string) *Producer {
	initProducerMetrics()
	return &Producer{w: w, comp: comp, now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch encodes every message before writing, so one bad value
// rejects the whole batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := p.now()
	headers := messageHeaders(ctx)

	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode message %d for %s: %w", i, topic, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Headers: headers, Time: start}
		size += int64(len(v))
	}

	err := p.w.WriteMessages(ctx, out...)
	observeProducer(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d message(s) to %s: %w", len(out), topic, err)
	}
	return nil
}

// Close flushes pending async writes. Calling it twice is safe.
func (p *Producer) Close() error {
	var err error
	p.once.Do(func() { err = p.w.Close() })
	return err
}

func messageHeaders(ctx context.Context) []kafka.Header {
	h := []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		h = append(h, kafka.Header{Key: "trace_id", Value: []byte(sc.TraceID().String())})
	}
	return h
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return json.Marshal(value)
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "snappy":
		return kafka.Snappy, nil
	case "gzip":
		return kafka.Gzip, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	case "none", "":
		return 0, nil
	}
	return 0, fmt.Errorf("kafka producer: unknown compression %q", name)
}

var (
	producerMsgs    *prometheus.CounterVec
	producerBytes   *prometheus.CounterVec
	producerLatency *prometheus.HistogramVec
	producerOnce    sync.Once
)

func initProducerMetrics() {
	producerOnce.Do(func() {
		producerMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nebula_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "result"})
		producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nebula_kafka_producer_bytes_total",
			Help: "Uncompressed payload bytes published",
		}, []string{"topic", "compression"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nebula_kafka_producer_publish_seconds",
			Help:    "Time spent in WriteMessages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"topic"})
	})
}

func observeProducer(topic, comp string, bytes int64, n int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgs.WithLabelValues(topic, result).Add(float64(n))
	if err == nil {
		producerBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	}
	producerLatency.WithLabelValues(topic).Observe(took.Seconds())
}
