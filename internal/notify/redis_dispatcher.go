package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher pushes JSON notifications onto a Redis list consumed by the mailer.
type RedisDispatcher struct {
	client *redis.Client
	key    string
}

func NewRedisDispatcher(client *redis.Client, key string) *RedisDispatcher {
	return &RedisDispatcher{client: client, key: key}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := d.client.LPush(ctx, d.key, body).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return nil
}

// Pop removes the oldest queued notification; redis.Nil when the queue is empty.
func (d *RedisDispatcher) Pop(ctx context.Context) (*Notification, error) {
	raw, err := d.client.RPop(ctx, d.key).Bytes()
	if err != nil {
		return nil, err
	}

	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &n, nil
}
