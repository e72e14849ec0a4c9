package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"votegate/internal/vote"
)

// RedisForwarder pushes vote JSON onto a Redis list for downstream
// processing. It is fire-and-forget like every consumer: a failed push is
// logged by the dispatcher and the vote is not retried.
type RedisForwarder struct {
	client *redis.Client
	key    string
}

// NewRedisForwarder connects to Redis and verifies the connection.
func NewRedisForwarder(addr, key string) (*RedisForwarder, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisForwarder{client: client, key: key}, nil
}

// Name identifies the consumer.
func (f *RedisForwarder) Name() string {
	return "redis"
}

// Accept pushes the vote onto the configured list.
func (f *RedisForwarder) Accept(ctx context.Context, v *vote.Vote) error {
	data, err := marshalVote(v)
	if err != nil {
		return err
	}
	return f.client.LPush(ctx, f.key, data).Err()
}

// Close releases the Redis connection.
func (f *RedisForwarder) Close() error {
	return f.client.Close()
}

func marshalVote(v *vote.Vote) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal vote: %w", err)
	}
	return data, nil
}
