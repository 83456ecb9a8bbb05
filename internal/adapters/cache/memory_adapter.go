package cache

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter implements CacheProvider in process memory. Expired entries
// are dropped lazily on read.
type MemoryAdapter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryAdapter creates an empty in-memory cache
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !a.now().Before(entry.expiresAt) {
		delete(a.entries, key)
		return nil, providers.ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a value; a non-positive ttl never expires
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = a.now().Add(ttl)
	}
	a.entries[key] = entry
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, key)
	return nil
}
