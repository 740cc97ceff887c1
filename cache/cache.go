package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Store is a byte cache shared by the response middleware and the handlers
// that invalidate it. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Error string

func (e Error) Error() string {
	return string(e)
}

const ErrCacheMiss Error = "cache miss"

// PageKey returns the cache key of a page's current configuration.
func PageKey(slug string) string {
	return "page:" + generateHash(slug)
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory. Expired entries are dropped
// lazily on read and by Sweep.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]entry
	defaultTTL time.Duration
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]entry),
		defaultTTL: defaultTTL,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	stored := append([]byte(nil), value...)

	m.mu.Lock()
	m.items[key] = entry{value: stored, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Sweep removes expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.items = make(map[string]entry)
	m.mu.Unlock()
	return nil
}
