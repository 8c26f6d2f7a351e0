// Package chat holds the messaging core: room resolution, the message
// delivery state machine, unread counters, typing relay and snap fan-out.
// Services here never talk to sockets directly; they push events through a
// Presence and read/write state through the repository interfaces.
package chat

import (
	"context"
	"time"

	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/push"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
)

// Presence is the slice of the connection registry the services need.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
	Send(userID uuid.UUID, ev realtime.Event) bool
}

// Directory resolves display data for push enrichment.
type Directory interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// MediaSigner issues short-lived read credentials for stored media.
type MediaSigner interface {
	SignedURL(ctx context.Context, mediaRef string, ttl time.Duration) (*models.MediaCredential, error)
}

type Options struct {
	DefaultSnapTTL    time.Duration
	MaxSnapTTL        time.Duration
	CredentialTTL     time.Duration
	ReapGrace         time.Duration
	MaxRecipients     int
	FanoutConcurrency int
	Now               func() time.Time
}

func OptionsFromConfig(cfg config.SnapConfig) Options {
	return Options{
		DefaultSnapTTL:    cfg.DefaultTTL,
		MaxSnapTTL:        cfg.MaxTTL,
		CredentialTTL:     cfg.CredentialTTL,
		ReapGrace:         cfg.ReapGrace,
		MaxRecipients:     cfg.MaxRecipients,
		FanoutConcurrency: cfg.FanoutConcurrency,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultSnapTTL <= 0 {
		o.DefaultSnapTTL = 24 * time.Hour
	}
	if o.MaxSnapTTL < o.DefaultSnapTTL {
		o.MaxSnapTTL = o.DefaultSnapTTL
	}
	if o.CredentialTTL <= 0 {
		o.CredentialTTL = time.Minute
	}
	if o.ReapGrace <= 0 {
		o.ReapGrace = 24 * time.Hour
	}
	if o.MaxRecipients <= 0 {
		o.MaxRecipients = 50
	}
	if o.FanoutConcurrency <= 0 {
		o.FanoutConcurrency = 4
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

type Deps struct {
	Repos     *repository.Repos
	Presence  Presence
	Push      push.Dispatcher
	Directory Directory
	Media     MediaSigner
	Log       *logger.Logger
}

type Services struct {
	Rooms    *RoomResolver
	Unread   *UnreadCounter
	Delivery *DeliveryCoordinator
	Typing   *TypingBroadcaster
	Snaps    *SnapFanout
}

func New(d Deps, opts Options) *Services {
	opts = opts.withDefaults()

	rooms := NewRoomResolver(d.Repos.Rooms, d.Log)
	unread := NewUnreadCounter(d.Repos.Cursors)
	delivery := &DeliveryCoordinator{
		rooms:     rooms,
		roomRepo:  d.Repos.Rooms,
		messages:  d.Repos.Messages,
		unread:    unread,
		presence:  d.Presence,
		push:      d.Push,
		directory: d.Directory,
		log:       d.Log.With("service", "DeliveryCoordinator"),
		now:       opts.Now,
	}
	return &Services{
		Rooms:    rooms,
		Unread:   unread,
		Delivery: delivery,
		Typing: &TypingBroadcaster{
			rooms:    rooms,
			presence: d.Presence,
			log:      d.Log.With("service", "TypingBroadcaster"),
		},
		Snaps: &SnapFanout{
			rooms:    rooms,
			snaps:    d.Repos.Snaps,
			messages: d.Repos.Messages,
			delivery: delivery,
			media:    d.Media,
			opts:     opts,
			log:      d.Log.With("service", "SnapFanout"),
		},
	}
}
