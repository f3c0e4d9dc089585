package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher enqueues messages for registered jobs.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config contains the configuration for the queue.
type Config struct {
	Workers    int           // number of workers
	QueueSize  int           // size of the in-process buffer
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
}

// Message represents a message in the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals a job payload. An empty payload yields the zero value.
func Decode[T any](payload json.RawMessage) (T, error) {
	var result T
	if len(payload) == 0 || string(payload) == "null" {
		return result, nil
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}

func encode(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}
