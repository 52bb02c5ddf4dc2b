package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gate-system/internal/clock"
	"gate-system/internal/status"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process ConditionalStore for tests. Expired entries
// are hidden on read and replaced on write.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.NewSystem()
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   c,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.clock.Now()) {
		return nil, status.ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = m.newEntry(value, ttl)
	return nil
}

func (m *MemoryStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && !entry.expired(m.clock.Now()) {
		return false, nil
	}
	m.entries[key] = m.newEntry(value, ttl)
	return true, nil
}

// Scan visits live entries under prefix in key order.
func (m *MemoryStore) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	m.mu.Lock()
	now := m.clock.Now()
	keys := make([]string, 0, len(m.entries))
	values := make(map[string][]byte)
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
			values[k] = append([]byte(nil), e.value...)
		}
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) newEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	return entry
}
