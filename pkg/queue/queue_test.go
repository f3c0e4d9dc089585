package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countJob struct {
	mu    sync.Mutex
	seen  []string
	fails int
}

func (j *countJob) Name() string { return "count" }
func (j *countJob) Type() string { return "count.v1" }

func (j *countJob) Handle(_ context.Context, payload json.RawMessage) error {
	p, err := Decode[struct {
		Key string `json:"key"`
	}](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fails > 0 {
		j.fails--
		return errors.New("transient")
	}
	j.seen = append(j.seen, p.Key)
	return nil
}

func (j *countJob) keys() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.seen...)
}

func TestLocalQueueRunsAndRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewLocalQueue(nil, Config{Workers: 1, RetryLimit: 2, RetryDelay: time.Millisecond})
	job := &countJob{fails: 2}
	q.RegisterJob(job)

	require.NoError(t, q.Enqueue(context.Background(), "count.v1", map[string]string{"key": "a"}))
	assert.Eventually(t, func() bool { return len(job.keys()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{"a"}, job.keys())

	require.NoError(t, q.Stop(context.Background()))
	assert.Error(t, q.Enqueue(context.Background(), "count.v1", nil))
}

func TestLocalQueueRejectsUnknownType(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewLocalQueue(nil, Config{})
	defer func() { _ = q.Stop(context.Background()) }()
	assert.Error(t, q.Enqueue(context.Background(), "missing", nil))
}

func TestDecode(t *testing.T) {
	type payload struct {
		N int `json:"n"`
	}
	v, err := Decode[payload](nil)
	require.NoError(t, err)
	assert.Zero(t, v.N)

	v, err = Decode[payload](json.RawMessage(`{"n":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, v.N)

	_, err = Decode[payload](json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestLocalQueueRunsFuncJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewLocalQueue(nil, Config{Workers: 2})
	got := make(chan string, 1)
	q.RegisterJob(Func{JobName: "echo", MsgType: "echo.v1", Fn: func(_ context.Context, p json.RawMessage) error {
		got <- string(p)
		return nil
	}})

	require.NoError(t, q.Enqueue(context.Background(), "echo.v1", json.RawMessage(`{"a":1}`)))
	select {
	case s := <-got:
		assert.JSONEq(t, `{"a":1}`, s)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	require.NoError(t, q.Stop(context.Background()))
}

func TestRedisQueueRejectsUnregisteredType(t *testing.T) {
	q := NewRedisQueue(nil, Config{}, nil, WithKeyPrefix("test:q"))
	err := q.Enqueue(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, "test:q:ready", q.key("ready"))
	require.NoError(t, q.Stop(context.Background()))
}
