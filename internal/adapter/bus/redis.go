package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/port"
)

const channelPrefix = "events:"

// RedisBus publishes events on Redis channels and relays them to local
// handlers. Redis pub/sub keeps nothing for absent subscribers.
type RedisBus struct {
	client      *redis.Client
	logger      *zap.Logger
	maxAttempts int
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger, maxAttempts: DefaultMaxAttempts}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	if err := b.client.Publish(ctx, channelPrefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Run subscribes to every topic in handlers and dispatches messages until ctx
// is cancelled. ready, if non-nil, is closed once the subscription is live.
func (b *RedisBus) Run(ctx context.Context, handlers map[string]port.EventHandler, ready chan<- struct{}) error {
	channels := make([]string, 0, len(handlers))
	for topic := range handlers {
		channels = append(channels, channelPrefix+topic)
	}

	sub := b.client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	b.logger.Info("subscribed to redis channels", zap.Strings("channels", channels))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			topic := msg.Channel[len(channelPrefix):]
			h, found := handlers[topic]
			if !found {
				continue
			}
			deliver(ctx, b.logger, h, topic, []byte(msg.Payload), b.maxAttempts)
		}
	}
}
