package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "sqlite", c.Store.Driver)
	assert.Equal(t, 0.90, c.Resolver.AutoLinkThreshold)
	assert.Equal(t, []string{"manual", "automatic_vector", "automatic_fuzzy"}, c.Resolver.SourcePrecedence)
	assert.Equal(t, 90*24*time.Hour, c.Engine.Window)
	assert.Equal(t, "local", c.Jobs.Backend)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
engine:
  z_threshold: 3
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 3.0, c.Engine.ZThreshold)
	assert.Equal(t, 14, c.Engine.MinHistory)
	assert.Equal(t, "memory", c.Cache.Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":    "store:\n  driver: mysql\n",
		"signals":   "signals:\n  backend: parquet\n",
		"threshold": "resolver:\n  auto_link_threshold: 1.5\n",
		"jobs":      "jobs:\n  backend: nats\n",
		"kafka":     "kafka:\n  enabled: true\n  brokers: []\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("NEBULA_PORT", "7070")
	t.Setenv("NEBULA_CACHE_BACKEND", "layered")
	t.Setenv("NEBULA_KAFKA_ENABLED", "true")
	t.Setenv("NEBULA_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("NEBULA_MENTION_FEED_URL", "ws://feed:1/x")

	c, err := LoadWithEnv(writeConfig(t, "environment: staging\n"))
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, "layered", c.Cache.Backend)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.MentionFeed.Enabled)
	assert.Equal(t, "ws://feed:1/x", c.MentionFeed.URL)
}

func TestLoadWithEnvRejectsBadOverride(t *testing.T) {
	t.Setenv("NEBULA_STORE_DRIVER", "oracle")
	_, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.Error(t, err)
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	t.Setenv("NEBULA_LOG_LEVEL", "debug")
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 8080, c.Server.Port)
}
