package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Notification is queued for the external push worker when a message is
// sent to a recipient with no live connection.
type Notification struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	RoomID      uuid.UUID `json:"room_id"`
	MessageID   uuid.UUID `json:"message_id"`
	Type        string    `json:"type"`
	Preview     string    `json:"preview"`
	CreatedAt   time.Time `json:"created_at"`
}

type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

type redisDispatcher struct {
	log   *logger.Logger
	rdb   *goredis.Client
	queue string
}

// NewDispatcher returns a Redis-backed dispatcher when REDIS_ADDR is set and
// a logging no-op otherwise.
func NewDispatcher(ctx context.Context, cfg *config.Config, log *logger.Logger) (Dispatcher, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Warn("REDIS_ADDR not set; push notifications disabled")
		return NewNopDispatcher(log), nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisDispatcher(rdb, cfg.Redis.PushQueue, log), nil
}

func NewRedisDispatcher(rdb *goredis.Client, queue string, log *logger.Logger) Dispatcher {
	return &redisDispatcher{
		log:   log.With("service", "RedisPushDispatcher"),
		rdb:   rdb,
		queue: queue,
	}
}

func (d *redisDispatcher) Notify(ctx context.Context, n Notification) error {
	if d == nil || d.rdb == nil {
		return fmt.Errorf("redis push dispatcher not initialized")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return d.rdb.RPush(ctx, d.queue, raw).Err()
}

func (d *redisDispatcher) Close() error {
	if d == nil || d.rdb == nil {
		return nil
	}
	return d.rdb.Close()
}

type nopDispatcher struct {
	log *logger.Logger
}

func NewNopDispatcher(log *logger.Logger) Dispatcher {
	return &nopDispatcher{log: log.With("service", "NopPushDispatcher")}
}

func (d *nopDispatcher) Notify(_ context.Context, n Notification) error {
	d.log.Debug("Push skipped", "recipientID", n.RecipientID, "messageID", n.MessageID)
	return nil
}

func (d *nopDispatcher) Close() error { return nil }
