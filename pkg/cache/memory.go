package cache

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-node deployments without
// redis. Entries with a zero ttl never expire.
type MemoryStore struct {
	mu           sync.RWMutex
	data         map[string]*memoryEntry
	timeProvider func() time.Time
}

func NewMemoryStore(timeProvider func() time.Time) *MemoryStore {
	if timeProvider == nil {
		timeProvider = time.Now
	}
	return &MemoryStore{
		data:         make(map[string]*memoryEntry),
		timeProvider: timeProvider,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		return "", ErrNotFound
	}
	expired := m.expired(entry)
	value := entry.value
	m.mu.RUnlock()

	if expired {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && m.expired(current) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) SetWithExpiry(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.timeProvider().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// KeysMatching supports the glob syntax of path.Match, which covers the
// redis patterns used here.
func (m *MemoryStore) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key, entry := range m.data {
		if m.expired(entry) {
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && m.timeProvider().After(entry.expiresAt)
}
