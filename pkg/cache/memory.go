package cache

import (
	"container/list"
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Entries with no explicit TTL are still dropped eventually.
const memoryDefaultTTL = 24 * time.Hour

type memoryEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache implements Service in process with LRU eviction. It backs the
// L1 layer of LayeredCache and serves as the cache in single-instance
// deployments.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	max     int
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxEntries: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     cfg.MaxEntries,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = memoryDefaultTTL
	}
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = value
		e.expiresAt = now.Add(expiration)
		mc.order.MoveToFront(el)
		return nil
	}
	for len(mc.entries) >= mc.max {
		mc.evictOldestLocked()
	}
	e := &memoryEntry{key: key, value: value, expiresAt: now.Add(expiration)}
	mc.entries[key] = mc.order.PushFront(e)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	el, ok := mc.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if e.expired(now) {
		mc.removeLocked(el)
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)

	switch d := dest.(type) {
	case *string:
		s, ok := e.value.(string)
		if !ok {
			return fmt.Errorf("cache: value for %q is not a string", key)
		}
		*d = s
	case *interface{}:
		*d = e.value
	default:
		return assign(dest, e.value)
	}
	return nil
}

// assign copies a stored value into a typed destination pointer. Values land
// here either as the destination's pointer type or its element type,
// depending on how the caller stored them.
func assign(dest, value interface{}) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("cache: destination %T is not a pointer", dest)
	}
	sv := reflect.ValueOf(value)
	switch {
	case sv.Type() == rv.Type():
		rv.Elem().Set(sv.Elem())
	case sv.Type() == rv.Type().Elem():
		rv.Elem().Set(sv)
	default:
		return fmt.Errorf("cache: cannot assign %T to %T", value, dest)
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.entries[key]; ok {
			mc.removeLocked(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.entries[key]; ok && !el.Value.(*memoryEntry).expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()

	el, ok := mc.entries[key]
	if !ok || el.Value.(*memoryEntry).expired(now) {
		if ok {
			mc.removeLocked(el)
		}
		e := &memoryEntry{key: key, value: int64(1), expiresAt: now.Add(memoryDefaultTTL)}
		mc.entries[key] = mc.order.PushFront(e)
		return 1, nil
	}
	e := el.Value.(*memoryEntry)
	v, ok := e.value.(int64)
	if !ok {
		return 0, fmt.Errorf("cache: value for %q is not a counter", key)
	}
	e.value = v + 1
	return v + 1, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.entries[key]; ok {
		el.Value.(*memoryEntry).expiresAt = time.Now().Add(expiration)
		return true, nil
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.entries[key]; ok && !el.Value.(*memoryEntry).expired(now) {
		return false, nil
	}
	e := &memoryEntry{key: key, value: "locked", expiresAt: now.Add(ttl)}
	if el, ok := mc.entries[key]; ok {
		mc.removeLocked(el)
	}
	mc.entries[key] = mc.order.PushFront(e)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close satisfies the layered cache's lifecycle; nothing to release.
func (mc *MemoryCache) Close() error { return nil }

func (mc *MemoryCache) evictOldestLocked() {
	if el := mc.order.Back(); el != nil {
		mc.removeLocked(el)
	}
}

func (mc *MemoryCache) removeLocked(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.entries, el.Value.(*memoryEntry).key)
}
