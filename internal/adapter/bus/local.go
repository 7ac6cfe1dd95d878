// Package bus provides pub/sub transports that do not need a sidecar.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/port"
)

// DefaultMaxAttempts bounds redelivery of an event whose handler fails.
const DefaultMaxAttempts = 3

var (
	ErrBusClosed = errors.New("bus closed")
	ErrQueueFull = errors.New("bus queue full")
)

// workerKey marks contexts handed to handlers by a LocalBus worker.
type workerKey struct{}

type envelope struct {
	topic string
	data  []byte
}

// LocalBus delivers events in-process through a bounded queue drained by a
// fixed pool of workers.
type LocalBus struct {
	logger      *zap.Logger
	queue       chan envelope
	maxAttempts int

	handlersMu sync.RWMutex
	handlers   map[string][]port.EventHandler

	closeMu  sync.Mutex
	closed   bool
	done     chan struct{}
	inflight sync.WaitGroup
	wg       sync.WaitGroup
}

func NewLocalBus(logger *zap.Logger, queueSize, workers int) *LocalBus {
	if workers < 1 {
		workers = 1
	}
	b := &LocalBus{
		logger:      logger,
		queue:       make(chan envelope, queueSize),
		maxAttempts: DefaultMaxAttempts,
		handlers:    make(map[string][]port.EventHandler),
		done:        make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go func(id int) {
			defer b.wg.Done()
			b.workerLoop(id)
		}(i)
	}
	return b
}

// Subscribe registers h for topic. Handlers added after an event was queued
// still see it if the event has not been picked up yet.
func (b *LocalBus) Subscribe(topic string, h port.EventHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish queues the event, waiting for room until ctx ends. A handler
// publishing from inside a worker never waits: ErrQueueFull is returned
// instead, since the worker itself is what drains the queue.
func (b *LocalBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return ErrBusClosed
	}
	b.inflight.Add(1)
	b.closeMu.Unlock()
	defer b.inflight.Done()

	env := envelope{topic: topic, data: data}
	if owner, _ := ctx.Value(workerKey{}).(*LocalBus); owner == b {
		select {
		case b.queue <- env:
			return nil
		default:
			return fmt.Errorf("publish %s: %w", topic, ErrQueueFull)
		}
	}

	select {
	case b.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBusClosed
	}
}

// Close stops accepting events, drains the queue and waits for the workers.
// Publishers still waiting for room get ErrBusClosed.
func (b *LocalBus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	b.closeMu.Unlock()

	close(b.done)
	b.inflight.Wait()
	close(b.queue)
	b.wg.Wait()
}

func (b *LocalBus) workerLoop(id int) {
	ctx := context.WithValue(context.Background(), workerKey{}, b)
	for env := range b.queue {
		b.handlersMu.RLock()
		handlers := append([]port.EventHandler(nil), b.handlers[env.topic]...)
		b.handlersMu.RUnlock()

		if len(handlers) == 0 {
			b.logger.Debug("no subscriber for event", zap.Int("worker", id), zap.String("topic", env.topic))
			continue
		}
		for _, h := range handlers {
			deliver(ctx, b.logger, h, env.topic, env.data, b.maxAttempts)
		}
	}
}

// deliver runs h until it succeeds or attempts are exhausted. There is no
// backoff; a failing handler is simply invoked again.
func deliver(ctx context.Context, logger *zap.Logger, h port.EventHandler, topic string, data []byte, attempts int) bool {
	for attempt := 1; attempt <= attempts; attempt++ {
		err := h(ctx, topic, data)
		if err == nil {
			return true
		}
		logger.Warn("event handler failed",
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	logger.Error("dropping event after redelivery attempts", zap.String("topic", topic), zap.Int("attempts", attempts))
	return false
}
