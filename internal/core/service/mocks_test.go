package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rl1809/dapr-shop/internal/port"
)

type publishedEvent struct {
	topic   string
	payload any
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (m *mockPublisher) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.topic == topic {
			n++
		}
	}
	return n
}

func (m *mockPublisher) last(topic string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].topic == topic {
			return m.events[i].payload
		}
	}
	return nil
}

var errStoreDown = errors.New("connection refused")

// Mock StateStore that is always unreachable
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) (*port.StateItem, error) {
	return nil, errStoreDown
}

func (brokenStore) Save(ctx context.Context, key string, value []byte) error {
	return errStoreDown
}

func (brokenStore) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	return errStoreDown
}

func (brokenStore) Delete(ctx context.Context, key string) error {
	return errStoreDown
}

func decodeStored[T any](raw []byte) T {
	var v T
	_ = json.Unmarshal(raw, &v)
	return v
}
