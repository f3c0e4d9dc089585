package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string            `yaml:"environment" default:"development"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Store       StoreConfig       `yaml:"store"`
	Signals     SignalsConfig     `yaml:"signals"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Engine      EngineConfig      `yaml:"engine"`
	MentionFeed MentionFeedConfig `yaml:"mention_feed"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Jobs        JobsConfig        `yaml:"jobs"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
	BodyLimit       string        `yaml:"body_limit" default:"1M"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// StoreConfig selects the relational store holding aliases and the review queue.
type StoreConfig struct {
	Driver          string        `yaml:"driver" default:"sqlite"` // sqlite | postgres
	DSN             string        `yaml:"dsn" default:"file:nebula.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
}

// SignalsConfig selects where signal events are appended.
type SignalsConfig struct {
	Backend string `yaml:"backend" default:"sql"` // sql | clickhouse
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"nebula"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" default:"memory"` // memory | redis | layered
	TTL           time.Duration `yaml:"ttl" default:"24h"`
	Prefix        string        `yaml:"prefix" default:"nebula"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"50000"`
	L1TTL         time.Duration `yaml:"l1_ttl" default:"5m"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	SignalsTopic string   `yaml:"signals_topic" default:"signals.raw"`
	MentionTopic string   `yaml:"mentions_topic" default:"mentions.raw"`
	AlertsTopic  string   `yaml:"alerts_topic" default:"signals.alerts"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"alpha-nebula"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"signals.dlq"`
	} `yaml:"consumer"`
}

type ResolverConfig struct {
	AutoLinkThreshold    float64       `yaml:"auto_link_threshold" default:"0.90"`
	LexicalLinkThreshold float64       `yaml:"lexical_link_threshold" default:"0.97"`
	BlockingK            int           `yaml:"blocking_k" default:"50"`
	BlockingMinScore     float64       `yaml:"blocking_min_score" default:"0.5"`
	FallbackK            int           `yaml:"fallback_k" default:"10"`
	ReviewCandidates     int           `yaml:"review_candidates" default:"10"`
	SourcePrecedence     []string      `yaml:"source_precedence" default:"[\"manual\",\"automatic_vector\",\"automatic_fuzzy\"]"`
	DefaultEntityType    string        `yaml:"default_entity_type" default:"ALIAS"`
	Timeout              time.Duration `yaml:"timeout" default:"10s"`
}

type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" default:"hash"` // hash | ollama
	Dimensions int           `yaml:"dimensions" default:"256"`
	OllamaURL  string        `yaml:"ollama_url" default:"http://localhost:11434"`
	Model      string        `yaml:"model" default:"all-minilm"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	RPS        float64       `yaml:"rps" default:"20"`
	Burst      int           `yaml:"burst" default:"5"`
	BatchSize  int           `yaml:"batch_size" default:"64"`
}

type EngineConfig struct {
	Window            time.Duration `yaml:"window" default:"2160h"`
	MinHistory        int           `yaml:"min_history" default:"14"`
	ZThreshold        float64       `yaml:"z_threshold" default:"2.0"`
	MaxLag            int           `yaml:"max_lag" default:"4"`
	Significance      float64       `yaml:"significance" default:"0.05"`
	MaxDifferencing   int           `yaml:"max_differencing" default:"1"`
	ADFLags           int           `yaml:"adf_lags" default:"1"`
	DefaultFrequency  string        `yaml:"default_frequency" default:"weekly"`
	FreshnessTTL      time.Duration `yaml:"freshness_ttl" default:"24h"`
	QueryLookback     time.Duration `yaml:"query_lookback" default:"2160h"`
	CausalityLookback time.Duration `yaml:"causality_lookback" default:"17520h"`
}

type MentionFeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url" default:"ws://localhost:8765/mentions"`
	Token          string        `yaml:"token"`
	Sources        []string      `yaml:"sources" default:"[\"shipping\",\"hiring\",\"app_store\"]"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	BufferSize     int           `yaml:"buffer_size" default:"1024"`
	PerSourceRPS   float64       `yaml:"per_source_rps" default:"50"`
}

type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled" default:"true"`
	ResolveRPS float64 `yaml:"resolve_rps" default:"20"`
	Burst      int     `yaml:"burst" default:"40"`
}

// JobsConfig drives the background job queue used for review sweeps.
type JobsConfig struct {
	Backend    string        `yaml:"backend" default:"local"` // local | redis
	Workers    int           `yaml:"workers" default:"2"`
	QueueSize  int           `yaml:"queue_size" default:"256"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
}

// Default returns a configuration populated from struct defaults only.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// envOverrides lists the settings deployments change without editing YAML.
type envOverrides struct {
	Environment    string   `envconfig:"ENVIRONMENT"`
	Port           int      `envconfig:"PORT"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	StoreDriver    string   `envconfig:"STORE_DRIVER"`
	StoreDSN       string   `envconfig:"STORE_DSN"`
	SignalsBackend string   `envconfig:"SIGNALS_BACKEND"`
	ClickHouseHost string   `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePass string   `envconfig:"CLICKHOUSE_PASSWORD"`
	RedisAddr      string   `envconfig:"REDIS_ADDR"`
	RedisPassword  string   `envconfig:"REDIS_PASSWORD"`
	CacheBackend   string   `envconfig:"CACHE_BACKEND"`
	KafkaEnabled   *bool    `envconfig:"KAFKA_ENABLED"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	EmbedProvider  string   `envconfig:"EMBEDDING_PROVIDER"`
	OllamaURL      string   `envconfig:"OLLAMA_URL"`
	FeedURL        string   `envconfig:"MENTION_FEED_URL"`
	FeedToken      string   `envconfig:"MENTION_FEED_TOKEN"`
}

// LoadWithEnv loads config from YAML and overrides with NEBULA_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadOrDefault behaves like LoadWithEnv but starts from Default when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	c, err := LoadWithEnv(path)
	if !errors.Is(err, fs.ErrNotExist) {
		return c, err
	}
	c = Default()
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overlays non-empty NEBULA_* variables onto c.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process("NEBULA", &o); err != nil {
		return fmt.Errorf("read env overrides: %w", err)
	}

	setString(&c.Environment, o.Environment)
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	setString(&c.Log.Level, o.LogLevel)
	setString(&c.Store.Driver, o.StoreDriver)
	setString(&c.Store.DSN, o.StoreDSN)
	setString(&c.Signals.Backend, o.SignalsBackend)
	setString(&c.ClickHouse.Host, o.ClickHouseHost)
	setString(&c.ClickHouse.Password, o.ClickHousePass)
	setString(&c.Redis.Addr, o.RedisAddr)
	setString(&c.Redis.Password, o.RedisPassword)
	setString(&c.Cache.Backend, o.CacheBackend)
	if o.KafkaEnabled != nil {
		c.Kafka.Enabled = *o.KafkaEnabled
	}
	if len(o.KafkaBrokers) > 0 {
		c.Kafka.Brokers = o.KafkaBrokers
	}
	setString(&c.Embedding.Provider, o.EmbedProvider)
	setString(&c.Embedding.OllamaURL, o.OllamaURL)
	if o.FeedURL != "" {
		c.MentionFeed.URL = o.FeedURL
		c.MentionFeed.Enabled = true
	}
	setString(&c.MentionFeed.Token, o.FeedToken)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'postgres', got '%s'", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	switch c.Signals.Backend {
	case "sql", "clickhouse":
	default:
		return fmt.Errorf("signals.backend must be 'sql' or 'clickhouse', got '%s'", c.Signals.Backend)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Resolver.AutoLinkThreshold <= 0 || c.Resolver.AutoLinkThreshold > 1 {
		return fmt.Errorf("resolver.auto_link_threshold must be in (0, 1], got %v", c.Resolver.AutoLinkThreshold)
	}
	if c.Resolver.BlockingK <= 0 {
		return fmt.Errorf("resolver.blocking_k must be positive")
	}
	if len(c.Resolver.SourcePrecedence) == 0 {
		return fmt.Errorf("resolver.source_precedence cannot be empty")
	}
	switch c.Embedding.Provider {
	case "hash", "ollama":
	default:
		return fmt.Errorf("embedding.provider must be 'hash' or 'ollama', got '%s'", c.Embedding.Provider)
	}
	if c.Engine.MinHistory < 2 {
		return fmt.Errorf("engine.min_history must be at least 2")
	}
	switch c.Jobs.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("jobs.backend must be 'local' or 'redis', got '%s'", c.Jobs.Backend)
	}
	if c.Engine.MaxLag < 1 {
		return fmt.Errorf("engine.max_lag must be at least 1")
	}
	return nil
}
