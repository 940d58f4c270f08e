// Package presence maintains each user's online flag in Redis. The gateway
// refreshes the flag on every websocket heartbeat and clears it when the
// socket drops; the key TTL is the backstop for hard crashes, so a vanished
// client reads as offline within one TTL even if the disconnect write never
// landed. Presence is deliberately separate from forfeits: going offline
// never ends a session by itself.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const onlineKeyPrefix = "arena:user:online:"

// onlineTTL is refreshed by heartbeats; an unrefreshed flag expires to
// offline on its own.
const onlineTTL = 2 * time.Minute

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Tracker is the Redis-backed presence store.
type Tracker struct {
	client *redis.Client
}

// NewTracker connects a presence tracker.
func NewTracker(cfg Config) *Tracker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &Tracker{client: client}
}

// Close releases the Redis connection pool.
func (t *Tracker) Close() error {
	return t.client.Close()
}

func onlineKey(uid string) string {
	return onlineKeyPrefix + uid
}

// SetOnline flips a user's online flag. Setting online arms the TTL; setting
// offline deletes the key immediately.
func (t *Tracker) SetOnline(ctx context.Context, uid string, online bool) error {
	if online {
		if err := t.client.Set(ctx, onlineKey(uid), "1", onlineTTL).Err(); err != nil {
			return fmt.Errorf("set online %s: %w", uid, err)
		}
		return nil
	}
	if err := t.client.Del(ctx, onlineKey(uid)).Err(); err != nil {
		return fmt.Errorf("set offline %s: %w", uid, err)
	}
	return nil
}

// Refresh extends a user's online TTL. Called from gateway heartbeats.
func (t *Tracker) Refresh(ctx context.Context, uid string) error {
	ok, err := t.client.Expire(ctx, onlineKey(uid), onlineTTL).Result()
	if err != nil {
		return fmt.Errorf("refresh presence %s: %w", uid, err)
	}
	if !ok {
		// Flag already expired; the client is evidently still here.
		return t.SetOnline(ctx, uid, true)
	}
	return nil
}

// IsOnline reads a user's online flag.
func (t *Tracker) IsOnline(ctx context.Context, uid string) (bool, error) {
	err := t.client.Get(ctx, onlineKey(uid)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get presence %s: %w", uid, err)
	}
	return true, nil
}

// Disconnected is the disconnect hook invoked by the gateway when a client's
// connection drops. It only clears presence; forfeits stay explicit.
func (t *Tracker) Disconnected(ctx context.Context, uid string) {
	if err := t.SetOnline(ctx, uid, false); err != nil {
		log.Warn().Err(err).Str("user_id", uid).Msg("failed to clear presence on disconnect")
	}
}
