package cache

import (
	"context"
	"sync"
	"time"
)

type MemoryCache struct {
	data   map[string]*cacheItem
	mu     sync.RWMutex
	stopCh chan struct{}
}

type cacheItem struct {
	value     []byte
	list      [][]byte
	expiresAt time.Time
}

// A zero expiresAt never expires, matching Redis semantics for ttl <= 0.
func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		data:   make(map[string]*cacheItem),
		stopCh: make(chan struct{}),
	}

	go mc.cleanupExpired()

	return mc
}

func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.data[key]
	if !exists {
		return nil, ErrNotFound
	}

	if item.expired(time.Now()) {
		return nil, ErrNotFound
	}

	valueCopy := make([]byte, len(item.value))
	copy(valueCopy, item.value)
	return valueCopy, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	mc.data[key] = &cacheItem{
		value:     valueCopy,
		expiresAt: expiry(ttl),
	}

	return nil
}

func (mc *MemoryCache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item, exists := mc.data[key]; exists && !item.expired(time.Now()) {
		return false, nil
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	mc.data[key] = &cacheItem{
		value:     valueCopy,
		expiresAt: expiry(ttl),
	}

	return true, nil
}

func (mc *MemoryCache) Take(ctx context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.data[key]
	if !exists {
		return nil, ErrNotFound
	}
	delete(mc.data, key)

	if item.expired(time.Now()) {
		return nil, ErrNotFound
	}

	return item.value, nil
}

func (mc *MemoryCache) Append(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.data[key]
	if !exists || item.expired(time.Now()) || item.list == nil {
		item = &cacheItem{list: make([][]byte, 0, max)}
		mc.data[key] = item
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	item.list = append(item.list, valueCopy)
	if over := len(item.list) - max; over > 0 {
		item.list = append(item.list[:0:0], item.list[over:]...)
	}
	item.expiresAt = expiry(ttl)

	return nil
}

func (mc *MemoryCache) List(ctx context.Context, key string) ([][]byte, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.data[key]
	if !exists || item.expired(time.Now()) {
		return nil, nil
	}

	out := make([][]byte, len(item.list))
	for i, v := range item.list {
		out[i] = make([]byte, len(v))
		copy(out[i], v)
	}
	return out, nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.data[key]
	if !exists {
		return false, nil
	}

	if item.expired(time.Now()) {
		return false, nil
	}

	return true, nil
}

func (mc *MemoryCache) Close() error {
	close(mc.stopCh)
	return nil
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.cleanup()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) cleanup() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for key, item := range mc.data {
		if item.expired(now) {
			delete(mc.data, key)
		}
	}
}
