package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	applogger "AlphaNebula/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, m models.RawMention) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, m models.RawMention) error

func (f ProcFunc) Process(ctx context.Context, m models.RawMention) error { return f(ctx, m) }

// FrameParser turns a source frame into a mention.
type FrameParser interface {
	Produce(f models.SourceFrame) (models.RawMention, error)
}

// Throttle admits or rejects work for a key.
type Throttle interface {
	Allow(key string) bool
}

// MentionPipeline sits between the scraper gateway and the resolver.
// It validates, throttles per source, and buffers when downstream is unavailable.
type MentionPipeline struct {
	proc     Proc
	parser   FrameParser
	throttle Throttle
	metrics  domrepo.Metrics
	log      *applogger.Logger

	bufSize    int
	bufCh      chan models.RawMention
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*MentionPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *MentionPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithThrottle limits accepted mentions per source.
func WithThrottle(t Throttle) PipelineOption {
	return func(p *MentionPipeline) { p.throttle = t }
}

// WithParser sets how raw frames become mentions.
func WithParser(fp FrameParser) PipelineOption {
	return func(p *MentionPipeline) { p.parser = fp }
}

// WithBackoff bounds the retry delay of the buffer flusher.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *MentionPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *MentionPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewMentionPipeline creates a new pipeline.
func NewMentionPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *MentionPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &MentionPipeline{
		proc:       proc,
		metrics:    metrics,
		log:        applogger.Nop(),
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.RawMention, p.bufSize)
	p.log = p.log.Component("mention_pipeline")
	return p
}

// Start launches background flushing of buffered mentions.
func (p *MentionPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case m := <-p.bufCh:
				err := p.proc.Process(ctx, m)
				if err == nil {
					backoff = p.backoffMin
					continue
				}
				if models.IsValidation(err) {
					p.metrics.RecordError("pipeline_invalid")
					continue
				}
				p.metrics.RecordError("pipeline_flush")
				backoff = min(backoff*2, p.backoffMax)
				t := time.NewTimer(backoff)
				select {
				case <-p.stopCh:
					t.Stop()
					return
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
				select {
				case p.bufCh <- m:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
			}
		}
	}()
}

// Stop stops the background flushing and waits for it to exit.
func (p *MentionPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

// Buffered reports how many mentions wait for a downstream retry.
func (p *MentionPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards m downstream, buffering on errors.
func (p *MentionPipeline) Process(ctx context.Context, m models.RawMention) error {
	start := time.Now()
	if err := validateMention(&m); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.throttle != nil && !p.throttle.Allow(m.Source) {
		p.metrics.RecordError("pipeline_throttle")
		p.log.Debug("mention throttled", applogger.String("source", m.Source))
		return nil
	}

	if err := p.proc.Process(ctx, m); err != nil {
		if models.IsValidation(err) {
			p.metrics.RecordError("pipeline_invalid")
			return err
		}
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- m:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// HandleFrame parses a gateway frame and processes the resulting mention.
func (p *MentionPipeline) HandleFrame(ctx context.Context, f models.SourceFrame) error {
	if p.parser == nil {
		return errors.New("mention pipeline has no frame parser")
	}
	m, err := p.parser.Produce(f)
	if err != nil {
		p.metrics.RecordError("pipeline_parse")
		return fmt.Errorf("parse frame from %s: %w", f.Source, err)
	}
	return p.Process(ctx, m)
}

// Run pumps frames from stream until ctx ends, reconnecting after read errors.
func (p *MentionPipeline) Run(ctx context.Context, stream domrepo.MentionStream) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	if err := stream.Subscribe(ctx); err != nil {
		return err
	}
	defer stream.Close()

	for {
		frames, errs := stream.Read(ctx)
		for f := range frames {
			if err := p.HandleFrame(ctx, f); err != nil {
				p.log.Warn("mention frame rejected", applogger.String("source", f.Source), applogger.Error(err))
			}
		}
		if err := <-errs; err != nil {
			p.log.Warn("mention feed interrupted", applogger.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
		for {
			err := stream.Reconnect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			p.metrics.RecordError("mention_feed_reconnect")
			p.log.Error("mention feed reconnect failed", applogger.Error(err))
		}
	}
}

func validateMention(m *models.RawMention) error {
	m.RawName = strings.TrimSpace(m.RawName)
	m.Source = strings.TrimSpace(m.Source)
	if m.RawName == "" {
		return models.NewValidationError("raw_name", "is required")
	}
	if m.Source == "" {
		return models.NewValidationError("source", "is required")
	}
	if m.Value != nil && (math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0)) {
		return models.NewValidationError("value", "must be finite")
	}
	return nil
}
