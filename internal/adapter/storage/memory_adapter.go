package storage

import (
	"context"
	"strconv"
	"sync"

	"github.com/rl1809/dapr-shop/internal/port"
)

type memoryEntry struct {
	value   []byte
	version int64
}

// MemoryAdapter is a process-local StateStore used for local runs and tests.
type MemoryAdapter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{entries: make(map[string]memoryEntry)}
}

func (m *MemoryAdapter) Get(ctx context.Context, key string) (*port.StateItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &port.StateItem{
		Key:     key,
		Value:   append([]byte(nil), entry.value...),
		Version: strconv.FormatInt(entry.version, 10),
	}, nil
}

func (m *MemoryAdapter) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[key]
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), version: entry.version + 1}
	return nil
}

func (m *MemoryAdapter) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	switch {
	case version == "" && exists:
		return port.ErrVersionConflict
	case version != "" && (!exists || strconv.FormatInt(entry.version, 10) != version):
		return port.ErrVersionConflict
	}

	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), version: entry.version + 1}
	return nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryAdapter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
