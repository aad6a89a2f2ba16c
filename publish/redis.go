package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/openmarket/core"
)

// recentEvents is how many events per item are kept in the Redis list.
const recentEvents = 100

// RedisChannel is the pub/sub channel an item's events are published on.
func RedisChannel(id core.ItemID) string {
	return fmt.Sprintf("market_events:%d", id)
}

// RedisRecentKey holds the most recent events of an item, newest first.
func RedisRecentKey(id core.ItemID) string {
	return fmt.Sprintf("market:item:%d:recent", id)
}

// RedisSink publishes events on Redis pub/sub and keeps a short per-item
// history for late subscribers.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(ctx context.Context, addr, password string, db int) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisSink{client: rdb}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, ev core.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, RedisChannel(ev.ItemID), data)
	pipe.LPush(ctx, RedisRecentKey(ev.ItemID), data)
	pipe.LTrim(ctx, RedisRecentKey(ev.ItemID), 0, recentEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
