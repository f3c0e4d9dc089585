package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"AlphaNebula/pkg/logger"
)

// promoteScript moves up to ARGV[2] delayed messages due at ARGV[1] onto the
// ready list in one round trip.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call("ZREM", KEYS[1], m)
	redis.call("LPUSH", KEYS[2], m)
end
return #due`)

// RedisQueue keeps messages in Redis lists. A worker moves a message from the
// ready list to a processing list with BLMOVE and removes it once settled, so
// messages held by a crashed process are requeued on the next Start.
// Only one process should consume a given key prefix.
type RedisQueue struct {
	log    *logger.Logger
	cfg    Config
	client *redis.Client
	prefix string
	poll   time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithPoll sets how long a worker blocks waiting for a message.
func WithPoll(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.poll = d
		}
	}
}

func NewRedisQueue(l *logger.Logger, cfg Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	cfg.normalize()
	if l == nil {
		l = logger.Nop()
	}
	r := &RedisQueue{
		log:    l.Component("queue"),
		cfg:    cfg,
		client: client,
		prefix: "nebula:queue",
		poll:   time.Second,
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.log.Warn("job type already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start requeues orphaned messages, then launches the workers and the
// delayed-message promoter.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	n, err := r.recover(ctx)
	if err != nil {
		return fmt.Errorf("requeue orphans: %w", err)
	}
	if n > 0 {
		r.log.Warn("requeued orphaned messages", logger.Int("count", n))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < r.cfg.Workers; i++ {
		g.Go(func() error { r.work(gctx); return nil })
	}
	g.Go(func() error { r.promoteLoop(gctx); return nil })
	r.cancel, r.group, r.running = cancel, g, true

	r.log.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.String("prefix", r.prefix))
	return nil
}

// Stop cancels the workers and waits for them within ctx. A handler still
// running when ctx expires leaves its message on the processing list.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	g := r.group
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop redis queue: %w", ctx.Err())
	}
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	_, ok := r.jobs[msgType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: r.now()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("ready"), b).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

func (r *RedisQueue) recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.key("processing"), r.key("ready"), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (r *RedisQueue) work(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := r.client.BLMove(ctx, r.key("ready"), r.key("processing"), "RIGHT", "LEFT", r.poll).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() == nil {
				r.log.Error("blmove", logger.Error(err))
				sleep(ctx, time.Second)
			}
			continue
		}
		r.handle(ctx, raw)
	}
}

func (r *RedisQueue) handle(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Error("undecodable message", logger.Error(err))
		r.settle(raw, "dead", nil)
		return
	}
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.settle(raw, "dead", nil)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	switch {
	case err == nil:
		r.settle(raw, "", nil)
	case ctx.Err() != nil:
		// left on the processing list; recovered on the next Start
	case msg.Attempts >= r.cfg.RetryLimit:
		r.log.Error("job failed permanently",
			logger.String("job", job.Name()), logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts+1), logger.Error(err))
		r.settle(raw, "dead", nil)
	default:
		r.log.Warn("job failed, retrying",
			logger.String("job", job.Name()), logger.String("id", msg.ID),
			logger.Int("attempt", msg.Attempts+1), logger.Error(err))
		msg.Attempts++
		next, merr := json.Marshal(msg)
		if merr != nil {
			r.settle(raw, "dead", nil)
			return
		}
		at := r.now().Add(r.cfg.RetryDelay)
		r.settle(raw, "delayed", &redis.Z{Score: float64(at.Unix()), Member: next})
	}
}

// settle removes raw from the processing list and, in the same transaction,
// files it under dest: "" drops it, "dead" appends it to the dead list and
// "delayed" schedules z.
func (r *RedisQueue) settle(raw, dest string, z *redis.Z) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, r.key("processing"), 1, raw)
		switch dest {
		case "dead":
			p.LPush(ctx, r.key("dead"), raw)
		case "delayed":
			p.ZAdd(ctx, r.key("delayed"), *z)
		}
		return nil
	})
	if err != nil {
		r.log.Error("settle message", logger.String("dest", dest), logger.Error(err))
	}
}

func (r *RedisQueue) promoteLoop(ctx context.Context) {
	every := r.cfg.RetryDelay / 2
	if every < 100*time.Millisecond {
		every = 100 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := strconv.FormatInt(r.now().Unix(), 10)
			err := promoteScript.Run(ctx, r.client, []string{r.key("delayed"), r.key("ready")}, now, 100).Err()
			if err != nil && ctx.Err() == nil {
				r.log.Error("promote delayed messages", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) key(name string) string { return r.prefix + ":" + name }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
