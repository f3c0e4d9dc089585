package database

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds relational store configuration.
type ClientConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// WithDialect selects the SQL dialect and driver.
func WithDialect(d Dialect) ClientOption {
	return func(c *ClientConfig) {
		c.Dialect = d
	}
}

// WithDSN sets the driver connection string.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) {
		c.DSN = dsn
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithConnMaxLifetime bounds how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnMaxLifetime = d
	}
}
