package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures NewRedisCache. Zero fields take the default tag.
type RedisConfig struct {
	Addr         string `default:"localhost:6379"`
	Password     string
	DB           int
	PoolSize     int           `default:"10"`
	MinIdleConns int           `default:"2"`
	PoolTimeout  time.Duration `default:"3s"`
	DialTimeout  time.Duration `default:"5s"`
	Prefix       string        `default:"nebula"`
}

// unlockScript deletes the lock only while it still carries our token, so an
// expired lock re-acquired by a peer is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const scanBatch = 500

// RedisCache is a Service over a single Redis database. All keys are stored
// under Prefix.
type RedisCache struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisCache connects and pings. The client is closed again if the ping fails.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("redis defaults: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
		DialTimeout:  cfg.DialTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheFromClient(client, cfg.Prefix), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (c *RedisCache) Client() *redis.Client { return c.client }
func (c *RedisCache) Prefix() string        { return c.prefix }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(key), data, expiration).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Unlink(ctx, full...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and unlinks matches in batches.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, c.key(pattern), scanBatch).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Unlink(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return flush()
}

// TryLock sets the key to a fresh token with NX semantics.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return unlockScript.Run(ctx, c.client, []string{c.key(key)}, token).Err()
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }
