package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestFieldsAreTyped(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).Component("resolver").With(String("env", "test"))

	l.Info("resolved",
		String("ticker", "AAPL"),
		Int("candidates", 3),
		Float64("score", 0.93),
		Bool("auto", true),
		Duration("took_ms", 1500*time.Millisecond),
		Strings("sources", []string{"manual", "automatic_vector"}),
		Error(errors.New("boom")),
		Error(nil),
	)

	m := lastLine(t, &buf)
	assert.Equal(t, "resolved", m["message"])
	assert.Equal(t, "resolver", m["component"])
	assert.Equal(t, "test", m["env"])
	assert.Equal(t, "AAPL", m["ticker"])
	assert.Equal(t, 3.0, m["candidates"])
	assert.Equal(t, 0.93, m["score"])
	assert.Equal(t, true, m["auto"])
	assert.Equal(t, 1500.0, m["took_ms"])
	assert.Equal(t, "manual, automatic_vector", m["sources"])
	assert.Equal(t, "boom", m["error"])
}

func TestLevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	NewWriter(&quiet, zerolog.WarnLevel).Info("dropped")
	NewWriter(&loud, zerolog.DebugLevel).Debug("kept")

	assert.Zero(t, quiet.Len())
	assert.Equal(t, "kept", lastLine(t, &loud)["message"])
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel)
	assert.Same(t, l, l.WithTrace(context.Background()))

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))
	l.WithTrace(ctx).Info("traced")

	m := lastLine(t, &buf)
	assert.Equal(t, tid.String(), m["trace_id"])
	assert.Equal(t, sid.String(), m["span_id"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)

	l, err := New(&Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
