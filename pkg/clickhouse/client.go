// Package clickhouse opens a pooled database/sql handle on ClickHouse.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/creasty/defaults"
)

// Config configures Open. Zero fields take the default tag.
type Config struct {
	Host     string
	Port     int    `default:"9000"`
	Database string `default:"default"`
	User     string `default:"default"`
	Password string
	HTTP     bool

	MaxOpenConns    int           `default:"10"`
	MaxIdleConns    int           `default:"5"`
	ConnMaxLifetime time.Duration `default:"5m"`
	DialTimeout     time.Duration `default:"5s"`
	ReadTimeout     time.Duration `default:"30s"`

	// MaxExecutionTime is sent as max_execution_time in whole seconds. With
	// AsyncInsert the server buffers small inserts; WaitForAsync makes the
	// insert return only after the flush.
	MaxExecutionTime time.Duration
	AsyncInsert      bool
	WaitForAsync     bool
}

type Client struct {
	db       *sql.DB
	database string
}

// Open builds the pool and pings it within DialTimeout.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("clickhouse defaults: %w", err)
	}

	db := clickhouse.OpenDB(options(cfg))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{db: db, database: cfg.Database}, nil
}

func options(cfg Config) *clickhouse.Options {
	o := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:    clickhouse.Native,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings:    clickhouse.Settings{},
	}
	if cfg.HTTP {
		o.Protocol = clickhouse.HTTP
		o.Compression = &clickhouse.Compression{Method: clickhouse.CompressionGZIP}
	}
	if secs := int(cfg.MaxExecutionTime / time.Second); secs > 0 {
		o.Settings["max_execution_time"] = secs
	}
	if cfg.AsyncInsert {
		o.Settings["async_insert"] = 1
		if cfg.WaitForAsync {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
	return o
}

func (c *Client) DB() *sql.DB      { return c.db }
func (c *Client) Database() string { return c.database }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
