package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"AlphaNebula/pkg/logger"
)

// LocalQueue runs jobs on in-process workers. Messages do not survive a restart.
type LocalQueue struct {
	logger *logger.Logger
	config Config
	jobs   map[string]Job
	msgCh  chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewLocalQueue(lgr *logger.Logger, config Config) *LocalQueue {
	config.normalize()
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &LocalQueue{
		logger: lgr.Component("queue"),
		config: config,
		jobs:   make(map[string]Job),
		msgCh:  make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// RegisterJob registers a single job.
func (q *LocalQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Type()] = job
}

func (q *LocalQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("queue stopped")
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: time.Now()}
	select {
	case q.msgCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("queue full")
	}
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgCh:
			q.process(msg)
		}
	}
}

func (q *LocalQueue) process(msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()

	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.config.RetryLimit {
			q.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
			return
		}
		msg.Attempts++
		t := time.NewTimer(q.config.RetryDelay)
		select {
		case <-q.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Stop cancels in-flight jobs and waits for workers.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		return nil
	}
}
