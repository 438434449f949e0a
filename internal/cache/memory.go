package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
	gen       uint64
}

func (e memoryEntry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// MemoryStore keeps entries in process memory. Expired entries are dropped
// lazily on access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	gen     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return ok && e.live(time.Now()), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.live(time.Now()) {
		m.dropExpired(key, e.gen)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if err := validate(value); err != nil {
		return err
	}
	data := make([]byte, len(value))
	copy(data, value)

	m.mu.Lock()
	m.gen++
	m.entries[key] = memoryEntry{data: data, expiresAt: expiry(ttl), gen: m.gen}
	m.mu.Unlock()
	return nil
}

// dropExpired deletes key only if it still holds the expired entry seen by
// the caller. A Set between the read and this call keeps its value.
func (m *MemoryStore) dropExpired(key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.gen == gen && !e.live(time.Now()) {
		delete(m.entries, key)
	}
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) (int, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, k := range keys {
		if e, ok := m.entries[k]; ok {
			if e.live(now) {
				n++
			}
			delete(m.entries, k)
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Sweep drops every expired entry.
func (m *MemoryStore) Sweep(ctx context.Context) (int64, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if !e.live(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}
