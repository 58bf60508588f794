package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feedsnap/internal/domain"
)

const redisOpTimeout = 5 * time.Second

// Redis stores the snapshot document under Key and announces it on Channel.
type Redis struct {
	client  redis.Cmdable
	Key     string
	Channel string
}

// Notification is the message published after a snapshot was stored.
type Notification struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Feeds     int    `json:"feeds"`
}

func NewRedis(client redis.Cmdable, key, channel string) *Redis {
	return &Redis{client: client, Key: key, Channel: channel}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Write(ctx context.Context, snap *domain.Snapshot) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Set(opCtx, r.Key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.Key, err)
	}

	if r.Channel == "" {
		return nil
	}

	note, err := json.Marshal(Notification{Key: r.Key, Timestamp: snap.Timestamp, Feeds: len(snap.Feeds)})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.client.Publish(opCtx, r.Channel, note).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.Channel, err)
	}

	return nil
}
