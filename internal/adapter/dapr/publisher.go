package dapr

import (
	"context"
	"fmt"

	daprclient "github.com/dapr/go-sdk/client"
)

// PubSubClient is the subset of the Dapr client used by Publisher.
type PubSubClient interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...daprclient.PublishEventOption) error
}

type Publisher struct {
	client     PubSubClient
	pubsubName string
}

func NewPublisher(client PubSubClient, pubsubName string) *Publisher {
	return &Publisher{client: client, pubsubName: pubsubName}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	if err := p.client.PublishEvent(ctx, p.pubsubName, topic, payload); err != nil {
		return fmt.Errorf("dapr publish %s: %w", topic, err)
	}
	return nil
}
