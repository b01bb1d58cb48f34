package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process. Values are stored JSON-encoded
// so Get behaves like RedisCache. When full, the entry closest to expiry is
// evicted.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]memoryItem
	maxSize int
	now     func() time.Time
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxSize: 1000, Now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		data:    make(map[string]memoryItem),
		maxSize: cfg.MaxSize,
		now:     cfg.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, data, expiration)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.lookup(key)
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	if s, ok := dest.(*string); ok {
		*s = string(item.data)
		return nil
	}
	return json.Unmarshal(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.lookup(key); ok {
		return false, nil
	}
	mc.put(key, []byte(token), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	item, ok := mc.lookup(key)
	if !ok || string(item.data) != token {
		return ErrLockNotHeld
	}
	delete(mc.data, key)
	return nil
}

// lookup must be called with mu held.
func (mc *MemoryCache) lookup(key string) (memoryItem, bool) {
	item, ok := mc.data[key]
	if !ok {
		return memoryItem{}, false
	}
	if item.expired(mc.now()) {
		delete(mc.data, key)
		return memoryItem{}, false
	}
	return item, true
}

// put must be called with mu held.
func (mc *MemoryCache) put(key string, data []byte, ttl time.Duration) {
	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evict()
	}
	item := memoryItem{data: data}
	if ttl > 0 {
		item.expireAt = mc.now().Add(ttl)
	}
	mc.data[key] = item
}

func (mc *MemoryCache) evict() {
	now := mc.now()
	victim := ""
	var soonest time.Time
	for k, it := range mc.data {
		if it.expired(now) {
			delete(mc.data, k)
			return
		}
		if it.expireAt.IsZero() {
			if victim == "" {
				victim = k
			}
			continue
		}
		if victim == "" || soonest.IsZero() || it.expireAt.Before(soonest) {
			victim, soonest = k, it.expireAt
		}
	}
	if victim != "" {
		delete(mc.data, victim)
	}
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}
