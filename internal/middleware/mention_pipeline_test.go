package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/service/mentionfeed"
	"AlphaNebula/internal/service/ratelimit"
)

type recorder struct {
	mu    sync.Mutex
	seen  []models.RawMention
	fails int
}

func (r *recorder) Process(_ context.Context, m models.RawMention) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("resolver unavailable")
	}
	r.seen = append(r.seen, m)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	for i, m := range r.seen {
		out[i] = m.RawName
	}
	return out
}

func TestPipelineValidatesMentions(t *testing.T) {
	rec := &recorder{}
	p := NewMentionPipeline(rec, nil)

	err := p.Process(context.Background(), models.RawMention{RawName: "  ", Source: "news"})
	assert.True(t, models.IsValidation(err))
	err = p.Process(context.Background(), models.RawMention{RawName: "Apple", Source: ""})
	assert.True(t, models.IsValidation(err))

	require.NoError(t, p.Process(context.Background(), models.RawMention{RawName: " Apple ", Source: "news"}))
	assert.Equal(t, []string{"Apple"}, rec.names())
}

func TestPipelineThrottlesPerSource(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lim := ratelimit.New(1, 2, ratelimit.WithClock(func() time.Time { return now }))
	p := NewMentionPipeline(rec, nil, WithThrottle(lim))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), models.RawMention{RawName: "Apple", Source: "news"}))
	}
	require.NoError(t, p.Process(context.Background(), models.RawMention{RawName: "Tesla", Source: "linkedin"}))
	assert.Equal(t, []string{"Apple", "Apple", "Tesla"}, rec.names())
}

func TestPipelineBuffersAndRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{fails: 2}
	p := NewMentionPipeline(rec, nil, WithBackoff(time.Millisecond, 5*time.Millisecond), WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, models.RawMention{RawName: "Hon Hai", Source: "news"})
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return len(rec.names()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Hon Hai", rec.names()[0])
}

// fakeStream serves one batch of frames per Read and fails once in between.
type fakeStream struct {
	mu         sync.Mutex
	batches    [][]models.SourceFrame
	reconnects int
	closed     bool
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) IsConnected() bool               { return true }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeStream) Read(ctx context.Context) (<-chan models.SourceFrame, <-chan error) {
	frames := make(chan models.SourceFrame, 8)
	errs := make(chan error, 1)
	s.mu.Lock()
	var batch []models.SourceFrame
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()

	go func() {
		defer close(frames)
		defer close(errs)
		for _, f := range batch {
			frames <- f
		}
		if batch != nil {
			errs <- errors.New("connection reset")
			return
		}
		<-ctx.Done()
	}()
	return frames, errs
}

func TestPipelineRunReconnectsAndParsesFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	reg := mentionfeed.NewRegistry()
	reg.Register("jobs", mentionfeed.DelimitedProducer("jobs", models.SignalHiringSpike, models.EntityTypeAlias))
	p := NewMentionPipeline(rec, nil, WithParser(reg))

	stream := &fakeStream{batches: [][]models.SourceFrame{
		{{Source: "jobs", RawText: "Hon Hai|12|2025-01-02T00:00:00Z"}},
		{{Source: "news", RawText: `{"raw_name":"Apple Inc","source":"news"}`}, {Source: "jobs", RawText: "broken|abc"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, stream) }()

	assert.Eventually(t, func() bool { return len(rec.names()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"Hon Hai", "Apple Inc"}, rec.names())
	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Equal(t, 2, stream.reconnects)
	assert.True(t, stream.closed)
}
