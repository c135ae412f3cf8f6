package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher delivers batches over a Redis pub/sub channel. Subscribers
// that are not connected at publish time never see the batch, which matches
// the connected-only contract.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a publisher on the given channel. An empty
// channel falls back to ChannelName.
func NewRedisPublisher(client *redis.Client, channel string) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("fanout: nil redis client")
	}
	if channel == "" {
		channel = ChannelName
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish sends the batch as JSON. A zero receiver count is success.
func (p *RedisPublisher) Publish(ctx context.Context, batch Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("fanout: marshal batch: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("fanout: publish to %s: %w", p.channel, err)
	}
	return nil
}
