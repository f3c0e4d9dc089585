package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"AlphaNebula/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ names the topic that receives messages whose retries are exhausted.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// Consumer reads registered topics and fans messages out to a worker pool.
// At most one message per (topic, partition) is in flight.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	msgChan  chan *message
	dlq      Publisher
	hook     ConsumerHook

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	commit func(topic string, km kafka.Message) error
}

type message struct {
	topic string
	km    kafka.Message
}

func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "alpha-nebula",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	c := newConsumer(cfg, log.Component("kafka-consumer"))
	if cfg.DLQTopic != "" {
		dlq, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers, RoundRobin: true})
		if err != nil {
			return nil, fmt.Errorf("dlq producer: %w", err)
		}
		c.dlq = dlq
	}
	c.commit = c.commitWithRetry
	return c, nil
}

func newConsumer(cfg *ConsumerConfig, log *logger.Logger) *Consumer {
	initConsumerMetrics()
	return &Consumer{
		cfg:       cfg,
		log:       log,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		stopChan:  make(chan struct{}),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
		commit:    func(string, kafka.Message) error { return nil },
	}
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}

	var readers sync.WaitGroup
	for topic, reader := range c.readers {
		readers.Add(1)
		go func(topic string, reader *kafka.Reader) {
			defer readers.Done()
			c.consumeMessages(topic, reader)
		}(topic, reader)
	}
	// Workers drain msgChan until every reader has stopped producing into it.
	go func() {
		readers.Wait()
		close(c.msgChan)
	}()

	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop signals readers to exit and waits for in-flight messages until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.waitForWg(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-c.stopChan:
				return
			}
		}

		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.wg.Done()
	for msg := range c.msgChan {
		c.process(msg)
	}
}

// process runs the handler with retries, sends exhausted messages to the DLQ
// and commits the offset once the message is settled.
func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}

	start := time.Now()
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(handler, msg)
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())

	settled := err == nil
	if err != nil {
		if errors.Is(err, errStopping) {
			return
		}
		consumerFailures.WithLabelValues(msg.topic).Inc()
		c.log.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Error(err))
		settled = c.deadLetter(msg, err)
	}

	if settled {
		if cerr := c.commit(msg.topic, msg.km); cerr != nil {
			c.log.Warn("commit offset", logger.String("topic", msg.topic), logger.Error(cerr))
		}
	}
}

var errStopping = errors.New("consumer stopping")

// ErrPermanent marks handler errors that retrying cannot fix, such as malformed payloads.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the consumer skips retries and dead-letters the message at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg *message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(handler, msg)
		if err == nil || attempt > c.cfg.RetryMax || errors.Is(err, ErrPermanent) {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return errStopping
		}
	}
}

func (c *Consumer) handleOnce(handler MessageHandler, msg *message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for %s: %v", msg.topic, r)
		}
	}()

	ctx := WithStartTime(context.Background(), time.Now())
	ctx = WithTraceID(ctx, ExtractTraceID(msg.km))
	hctx, hmsg, data, err := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
	if err != nil {
		return err
	}
	err = handler.Handle(hctx, data)
	c.hook.AfterHandle(hctx, msg.topic, hmsg, data, err)
	if err != nil {
		c.hook.OnError(hctx, msg.topic, hmsg, data, err)
	}
	return err
}

// deadLetter reports whether the message may be committed.
func (c *Consumer) deadLetter(msg *message, cause error) bool {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		// Without a DLQ a poison message would block its partition forever.
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.Publish(ctx, c.cfg.DLQTopic, msg.km.Key, deadLetterRecord{
		SourceTopic: msg.topic,
		Partition:   msg.km.Partition,
		Offset:      msg.km.Offset,
		Error:       cause.Error(),
		Payload:     string(msg.km.Value),
	})
	if err != nil {
		c.log.Error("dlq publish failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

type deadLetterRecord struct {
	SourceTopic string `json:"source_topic"`
	Partition   int    `json:"partition"`
	Offset      int64  `json:"offset"`
	Error       string `json:"error"`
	Payload     string `json:"payload"`
}

func (c *Consumer) commitWithRetry(topic string, km kafka.Message) error {
	reader := c.readers[topic]
	if reader == nil {
		return nil
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerFailures      *prometheus.CounterVec
	consumerMetricsOnce   sync.Once
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "nebula_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "nebula_kafka_consumer_handle_seconds", Help: "Handling time per message including retries"},
			[]string{"topic"},
		)
		consumerFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "nebula_kafka_consumer_failures_total", Help: "Messages whose retries were exhausted"},
			[]string{"topic"},
		)
	})
}
