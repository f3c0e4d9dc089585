package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize  int
	sweep    time.Duration
	clock    func() time.Time
	noExpiry time.Duration
}

// WithMemoryMaxSize bounds the entry count; the least recently used entry is
// evicted first. Zero disables the bound.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) { c.maxSize = size }
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.sweep = interval }
}

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) { c.clock = now }
}

// MemoryCache is an LRU Service kept in process memory.
type MemoryCache struct {
	mutex    sync.Mutex
	data     map[string]*list.Element
	lru      *list.List
	maxSize  int
	now      func() time.Time
	noExpiry time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryCache creates an in-memory cache. Close stops the cleanup goroutine.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := memoryConfig{maxSize: 1000, sweep: 5 * time.Minute, clock: time.Now, noExpiry: 7 * 24 * time.Hour}
	for _, opt := range opts {
		opt(&cfg)
	}

	mc := &MemoryCache{
		data:     make(map[string]*list.Element),
		lru:      list.New(),
		maxSize:  cfg.maxSize,
		now:      cfg.clock,
		noExpiry: cfg.noExpiry,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go mc.sweepLoop(cfg.sweep)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.noExpiry
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.put(key, data, mc.now().Add(expiration))
	return nil
}

func (mc *MemoryCache) put(key string, data []byte, expireAt time.Time) {
	if el, ok := mc.data[key]; ok {
		item := el.Value.(*memoryItem)
		item.value = data
		item.expireAt = expireAt
		mc.lru.MoveToFront(el)
		return
	}
	for mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		mc.removeElement(mc.lru.Back())
	}
	mc.data[key] = mc.lru.PushFront(&memoryItem{key: key, value: data, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	el, ok := mc.data[key]
	if !ok {
		mc.mutex.Unlock()
		return ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if !mc.now().Before(item.expireAt) {
		mc.removeElement(el)
		mc.mutex.Unlock()
		return ErrCacheMiss
	}
	mc.lru.MoveToFront(el)
	data := item.value
	mc.mutex.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		if el, ok := mc.data[key]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// DeleteByPattern removes keys matching a glob pattern ('*', '?', '[...]').
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for key, el := range mc.data {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	now := mc.now()
	if el, ok := mc.data[key]; ok && now.Before(el.Value.(*memoryItem).expireAt) {
		return false, nil
	}
	mc.put(key, []byte("locked"), now.Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len reports the number of stored entries, expired ones included until swept.
func (mc *MemoryCache) Len() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.lru.Remove(el)
	delete(mc.data, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) sweepLoop(interval time.Duration) {
	defer close(mc.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
			mc.sweep()
		}
	}
}

// sweep walks from the LRU tail, so entries untouched the longest go first.
func (mc *MemoryCache) sweep() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	now := mc.now()
	for el := mc.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryItem).expireAt) {
			mc.removeElement(el)
		}
		el = prev
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		close(mc.stop)
		<-mc.done
	})
	return nil
}
