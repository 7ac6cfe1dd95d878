package port

import "context"

// EventPublisher is the fire-and-forget side of the pub/sub bus.
type EventPublisher interface {
	// Publish encodes payload as JSON and sends it to topic
	Publish(ctx context.Context, topic string, payload any) error
}

// EventHandler consumes one raw event payload. A non-nil error asks the bus
// to redeliver.
type EventHandler func(ctx context.Context, topic string, data []byte) error
