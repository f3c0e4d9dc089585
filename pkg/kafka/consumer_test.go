package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"AlphaNebula/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flakyHandler struct {
	topic    string
	failures int
	calls    int
}

func (h *flakyHandler) Topic() string { return h.topic }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	values []interface{}
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return nil
}

func (p *recordingPublisher) PublishBatch(context.Context, string, []Message) error { return nil }
func (p *recordingPublisher) Close() error                                          { return nil }

func testConsumer(retries int, dlq *recordingPublisher) (*Consumer, *int) {
	cfg := &ConsumerConfig{
		RetryMax:   retries,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
		BufferSize: 1,
	}
	if dlq != nil {
		cfg.DLQTopic = "signals.dlq"
	}
	c := newConsumer(cfg, logger.Nop())
	if dlq != nil {
		c.dlq = dlq
	}
	commits := 0
	c.commit = func(string, kafka.Message) error {
		commits++
		return nil
	}
	return c, &commits
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	dlq := &recordingPublisher{}
	c, commits := testConsumer(3, dlq)
	h := &flakyHandler{topic: "signals.raw", failures: 2}
	c.RegisterHandler(h)

	c.process(&message{topic: "signals.raw", km: kafka.Message{Value: []byte(`{}`)}})

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, 1, *commits)
	assert.Empty(t, dlq.topics)
}

func TestProcessExhaustedGoesToDLQ(t *testing.T) {
	dlq := &recordingPublisher{}
	c, commits := testConsumer(1, dlq)
	h := &flakyHandler{topic: "mentions.raw", failures: 10}
	c.RegisterHandler(h)

	c.process(&message{topic: "mentions.raw", km: kafka.Message{Offset: 7, Value: []byte(`bad`)}})

	assert.Equal(t, 2, h.calls)
	require.Len(t, dlq.topics, 1)
	assert.Equal(t, "signals.dlq", dlq.topics[0])
	rec, ok := dlq.values[0].(deadLetterRecord)
	require.True(t, ok)
	assert.Equal(t, "mentions.raw", rec.SourceTopic)
	assert.Equal(t, int64(7), rec.Offset)
	assert.Equal(t, "bad", rec.Payload)
	assert.Equal(t, 1, *commits)
}

type permanentHandler struct{ calls int }

func (h *permanentHandler) Topic() string { return "signals.raw" }

func (h *permanentHandler) Handle(context.Context, []byte) error {
	h.calls++
	return Permanent(errors.New("invalid ticker"))
}

func TestProcessSkipsRetriesForPermanentErrors(t *testing.T) {
	dlq := &recordingPublisher{}
	c, commits := testConsumer(5, dlq)
	h := &permanentHandler{}
	c.RegisterHandler(h)

	c.process(&message{topic: "signals.raw", km: kafka.Message{Value: []byte(`{}`)}})

	assert.Equal(t, 1, h.calls)
	assert.Len(t, dlq.topics, 1)
	assert.Equal(t, 1, *commits)
	assert.ErrorIs(t, Permanent(errors.New("x")), ErrPermanent)
	assert.NoError(t, Permanent(nil))
}

func TestProcessDoesNotCommitWhenDLQFails(t *testing.T) {
	dlq := &recordingPublisher{err: errors.New("broker down")}
	c, commits := testConsumer(0, dlq)
	c.RegisterHandler(&flakyHandler{topic: "t", failures: 1})

	c.process(&message{topic: "t"})

	assert.Zero(t, *commits)
}

func TestProcessRecoversHandlerPanic(t *testing.T) {
	c, commits := testConsumer(0, nil)
	c.RegisterHandler(panicHandler{})

	assert.NotPanics(t, func() { c.process(&message{topic: "panic"}) })
	assert.Equal(t, 1, *commits)
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "panic" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestHookChainOrderAndPanicSafety(t *testing.T) {
	var order []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before-1")
			return ctx, km, append(data, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after-1") },
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before-2")
			return ctx, km, append(data, '2'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) {
			order = append(order, "after-2")
			panic("ignored")
		},
	}
	chain := NewHookChain(first, nil, second)

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x12", string(data))

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before-1", "before-2", "after-2", "after-1"}, order)

	bad := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("broken")
		},
	})
	_, _, _, err = bad.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "ERR_PANIC", hookErr.Code)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}
