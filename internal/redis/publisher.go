package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher fans realtime events out to subscribed clients over Redis pub/sub.
// The engine only publishes; the socket gateway that feeds browsers subscribes
// on its own.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Emit(ctx context.Context, topic, event string) error {
	if err := p.client.Publish(ctx, topic, event).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, topic, err)
	}
	return nil
}
