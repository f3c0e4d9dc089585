// Package mentionfeed reads raw scraper frames from a websocket gateway.
package mentionfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"AlphaNebula/internal/domain/models"
	drepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/pkg/logger"
)

// Client implements MentionStream against a scraper gateway websocket.
type Client struct {
	url            string
	token          string
	sources        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	buffer         int
	log            *logger.Logger
	now            func() time.Time

	mu        sync.Mutex // guards conn writes and state
	conn      *websocket.Conn
	connected bool
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithSources(sources ...string) Option {
	return func(c *Client) { c.sources = sources }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// New creates a gateway MentionStream.
func New(url string, l *logger.Logger, opts ...Option) *Client {
	if l == nil {
		l = logger.Nop()
	}
	c := &Client{
		url:            url,
		reconnectDelay: 2 * time.Second,
		pingInterval:   20 * time.Second,
		buffer:         1024,
		log:            l.Component("mentionfeed"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ drepo.MentionStream = (*Client)(nil)

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.url
	if c.token != "" {
		u = fmt.Sprintf("%s?token=%s", c.url, c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("mention feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected", logger.String("url", c.url))
	return nil
}

type control struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Subscribe asks the gateway for every configured source. No sources means all.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("mention feed not connected")
	}
	sources := c.sources
	if len(sources) == 0 {
		sources = []string{"*"}
	}
	for _, s := range sources {
		if err := c.conn.WriteJSON(control{Type: "subscribe", Source: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Debug("subscribed", logger.String("source", s))
	}
	return nil
}

type frame struct {
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// Read streams frames of type "mention". The payload is passed on verbatim as raw text:
// a JSON string payload is unquoted, anything else is kept as JSON.
func (c *Client) Read(ctx context.Context) (<-chan models.SourceFrame, <-chan error) {
	frames := make(chan models.SourceFrame, c.buffer)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteControl(websocket.PingMessage, nil, c.now().Add(5*time.Second))
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(frames)
		defer close(errs)
		defer close(done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errs <- fmt.Errorf("mention feed conn nil")
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = c.release(conn) })
		defer stop()

		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("mention feed read: %w", err)
				}
				return
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil || f.Type != "mention" {
				continue
			}
			sf := models.SourceFrame{Source: f.Source, RawText: rawText(f.Payload), ReceivedAt: c.now().UTC()}
			select {
			case frames <- sf:
			case <-ctx.Done():
				return
			default:
				c.log.Warn("frame dropped on backpressure", logger.String("source", f.Source))
			}
		}
	}()

	return frames, errs
}

func rawText(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection. Closing after the read context has
// already torn the connection down is not an error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return nil
	}
	return c.release(conn)
}

// release closes conn and clears it if it is still the current connection.
func (c *Client) release(conn *websocket.Conn) error {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
	c.mu.Unlock()
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
