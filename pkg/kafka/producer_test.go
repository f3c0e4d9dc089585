package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed++
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducerPublishEncodesAndStampsTrace(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "none")
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))

	require.NoError(t, p.Publish(ctx, "signals.alerts", []byte("AAPL"), map[string]float64{"z": 2.5}))
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "signals.alerts", m.Topic)
	assert.Equal(t, "AAPL", string(m.Key))
	assert.Equal(t, fixed, m.Time)
	assert.Equal(t, "application/json", header(m, "content-type"))
	assert.Equal(t, tid.String(), header(m, "trace_id"))
	assert.Equal(t, tid.String(), ExtractTraceID(m))

	var body map[string]float64
	require.NoError(t, json.Unmarshal(m.Value, &body))
	assert.Equal(t, 2.5, body["z"])
}

func TestProducerBatchRejectsUnencodableValue(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "none")

	err := p.PublishBatch(context.Background(), "t", []Message{
		{Key: []byte("a"), Value: "ok"},
		{Key: []byte("b"), Value: make(chan int)},
	})
	require.Error(t, err)
	assert.Empty(t, w.msgs)
	assert.Empty(t, header(kafka.Message{}, "trace_id"))
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&captureWriter{err: boom}, "none")
	err := p.Publish(context.Background(), "t", nil, []byte("raw"))
	assert.ErrorIs(t, err, boom)
}

func TestProducerCloseOnce(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "none")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	require.Error(t, err)

	_, err = NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Compression: "brotli"})
	require.Error(t, err)

	p, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
