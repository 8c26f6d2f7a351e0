package realtime

import (
	"sync"

	"dmcore-backend/internal/logger"

	"github.com/google/uuid"
)

// Client is the handle for one live connection. The transport drains
// Outbound; Send never blocks.
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Outbound chan Event
	Logger   *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID uuid.UUID, buffer int, log *logger.Logger) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	id := uuid.New()
	return &Client{
		ID:       id,
		UserID:   userID,
		Outbound: make(chan Event, buffer),
		Logger:   log.With("clientID", id),
		done:     make(chan struct{}),
	}
}

// Send queues ev and reports whether it was accepted. Events for a closed
// client or a full buffer are dropped.
func (c *Client) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Outbound <- ev:
		return true
	default:
		c.Logger.Warn("Dropping event; outbound buffer full", "event", ev.EventName())
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }
