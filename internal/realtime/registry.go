package realtime

import (
	"dmcore-backend/internal/logger"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is the process-local presence map: at most one live Client per
// user, last connect wins. It is not shared across processes.
type Registry struct {
	clients *xsync.MapOf[uuid.UUID, *Client]
	log     *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		clients: xsync.NewMapOf[uuid.UUID, *Client](),
		log:     log.With("component", "ConnectionRegistry"),
	}
}

// Register makes c the user's active connection and returns the handle it
// displaced, if any.
func (r *Registry) Register(c *Client) *Client {
	prev, loaded := r.clients.LoadAndStore(c.UserID, c)
	if loaded && prev != c {
		r.log.Debug("Connection displaced", "userID", c.UserID, "clientID", c.ID, "previousClientID", prev.ID)
		return prev
	}
	r.log.Debug("Connection registered", "userID", c.UserID, "clientID", c.ID)
	return nil
}

// Unregister removes c only while it is still the registered handle, so a
// late disconnect cannot evict a newer connection.
func (r *Registry) Unregister(c *Client) bool {
	removed := false
	r.clients.Compute(c.UserID, func(current *Client, loaded bool) (*Client, bool) {
		if !loaded {
			return nil, true
		}
		if current == c {
			removed = true
			return nil, true
		}
		return current, false
	})
	if removed {
		r.log.Debug("Connection unregistered", "userID", c.UserID, "clientID", c.ID)
	}
	return removed
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.clients.Load(userID)
	return ok
}

func (r *Registry) Resolve(userID uuid.UUID) (*Client, bool) {
	return r.clients.Load(userID)
}

// Send delivers ev to the user's active connection, best-effort.
func (r *Registry) Send(userID uuid.UUID, ev Event) bool {
	c, ok := r.clients.Load(userID)
	if !ok {
		return false
	}
	return c.Send(ev)
}

func (r *Registry) Count() int {
	return r.clients.Size()
}

// Shutdown closes every registered client and clears the map.
func (r *Registry) Shutdown() {
	r.clients.Range(func(userID uuid.UUID, c *Client) bool {
		c.Close()
		return true
	})
	r.clients.Clear()
	r.log.Info("Connection registry cleared")
}
