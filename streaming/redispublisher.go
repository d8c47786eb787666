package streaming

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events over a Redis Pub/Sub channel so that an
// out-of-process action executor can subscribe to "scheduled" transitions
// without polling. Adapted from the teacher's use of go-redis in
// store/redis.go — that file uses the client for versioned storage; this
// exercises the same client's Pub/Sub surface for the notification path the
// spec calls out as load-bearing (publish-before-delete).
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, topic, data).Err()
}

func (p *RedisPublisher) Close() error { return p.client.Close() }
