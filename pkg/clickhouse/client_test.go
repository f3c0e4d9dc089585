package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsNative(t *testing.T) {
	o := options(Config{
		Host:             "ch.local",
		Port:             9000,
		Database:         "nebula",
		User:             "reader",
		Password:         "p@ss/word",
		DialTimeout:      5 * time.Second,
		MaxExecutionTime: 60 * time.Second,
		AsyncInsert:      true,
		WaitForAsync:     true,
	})

	assert.Equal(t, []string{"ch.local:9000"}, o.Addr)
	assert.Equal(t, clickhouse.Native, o.Protocol)
	assert.Equal(t, "nebula", o.Auth.Database)
	assert.Equal(t, "p@ss/word", o.Auth.Password)
	assert.Equal(t, clickhouse.CompressionLZ4, o.Compression.Method)
	assert.Equal(t, 60, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])
}

func TestOptionsHTTPWithoutSettings(t *testing.T) {
	o := options(Config{Host: "h", Port: 8123, Database: "d", User: "u", HTTP: true})
	assert.Equal(t, clickhouse.HTTP, o.Protocol)
	assert.Equal(t, clickhouse.CompressionGZIP, o.Compression.Method)
	assert.Empty(t, o.Settings)
}

func TestOpenRequiresHost(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
