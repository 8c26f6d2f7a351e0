package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SnapInput is a sender's request to share ephemeral media.
type SnapInput struct {
	RecipientIDs []uuid.UUID
	MediaRef     string
	TTL          time.Duration
}

// SnapFanout owns the snap aggregate and its per-recipient chat projection.
// The aggregate is authoritative for view and expiry state; the projected
// messages are display only.
type SnapFanout struct {
	rooms    *RoomResolver
	snaps    repository.SnapRepo
	messages repository.MessageRepo
	delivery *DeliveryCoordinator
	media    MediaSigner
	opts     Options
	log      *logger.Logger
}

// Send creates a snap for the given recipients and fans it out. The call
// succeeds once delivery was attempted for every recipient; per-recipient
// outcomes are reported alongside.
func (f *SnapFanout) Send(ctx context.Context, senderID uuid.UUID, in SnapInput) (*models.Snap, []models.RecipientDelivery, error) {
	mediaRef := strings.TrimSpace(in.MediaRef)
	if mediaRef == "" {
		return nil, nil, apperr.ErrMissingMedia
	}
	recipients := uniqueRecipients(senderID, in.RecipientIDs)
	if len(recipients) == 0 {
		return nil, nil, apperr.ErrNoRecipients
	}
	if len(recipients) > f.opts.MaxRecipients {
		return nil, nil, apperr.ErrTooManyReceivers
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = f.opts.DefaultSnapTTL
	}
	if ttl > f.opts.MaxSnapTTL {
		ttl = f.opts.MaxSnapTTL
	}

	snap := &models.Snap{
		SenderID:  senderID,
		MediaRef:  mediaRef,
		ExpiresAt: f.opts.Now().Add(ttl),
	}
	for _, id := range recipients {
		snap.Recipients = append(snap.Recipients, models.SnapRecipient{RecipientID: id})
	}

	created, err := f.snaps.Create(ctx, snap)
	if err != nil {
		return nil, nil, err
	}
	f.log.Info("Snap created", "snapID", created.ID, "senderID", senderID, "recipients", len(recipients))

	return created, f.DeliverSnap(ctx, created), nil
}

// DeliverSnap projects snap into each recipient's direct room. Recipients
// are processed independently; one failure never stops the others, and a
// cancelled caller does not stop the fan-out of a persisted snap.
func (f *SnapFanout) DeliverSnap(ctx context.Context, snap *models.Snap) []models.RecipientDelivery {
	ctx = context.WithoutCancel(ctx)
	results := make([]models.RecipientDelivery, len(snap.Recipients))

	var g errgroup.Group
	g.SetLimit(f.opts.FanoutConcurrency)
	for i := range snap.Recipients {
		i := i
		recipientID := snap.Recipients[i].RecipientID
		g.Go(func() error {
			results[i] = f.deliverOne(ctx, snap, recipientID)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.Outcome == models.OutcomeDelivered && res.DeliveredAt != nil {
			snap.Recipients[i].DeliveredAt = res.DeliveredAt
		}
	}
	return results
}

func (f *SnapFanout) deliverOne(ctx context.Context, snap *models.Snap, recipientID uuid.UUID) models.RecipientDelivery {
	out := models.RecipientDelivery{RecipientID: recipientID, Outcome: models.OutcomeFailed}
	log := f.log.With("snapID", snap.ID, "recipientID", recipientID)

	room, err := f.rooms.GetOrCreateDirectRoom(ctx, snap.SenderID, recipientID)
	if err != nil {
		log.Warn("Snap room resolution failed", "error", err)
		out.Error = apperr.Message(err)
		return out
	}
	out.RoomID = &room.ID
	if room.IsBlocked {
		log.Debug("Snap recipient skipped, room blocked", "roomID", room.ID)
		out.Outcome = models.OutcomeBlocked
		return out
	}

	mediaRef := snap.MediaRef
	msg, err := f.messages.Create(ctx, &models.Message{
		RoomID:   room.ID,
		SenderID: snap.SenderID,
		Type:     models.MessageTypeSnap,
		Payload:  snap.ID.String(),
		MediaRef: &mediaRef,
	})
	if err != nil {
		log.Error("Snap projection failed", "roomID", room.ID, "error", err)
		out.Error = apperr.Message(err)
		return out
	}
	out.MessageID = &msg.ID

	f.delivery.project(ctx, room, msg)

	deliveredAt := msg.CreatedAt
	if err := f.snaps.MarkDelivered(ctx, snap.ID, recipientID, deliveredAt); err != nil {
		log.Warn("Failed to stamp snap delivery", "error", err)
	} else {
		out.DeliveredAt = &deliveredAt
	}
	out.Outcome = models.OutcomeDelivered
	return out
}

// View grants userID a short-lived media credential for the snap. The first
// view per recipient is counted exactly once; expiry is checked before any
// view state changes.
func (f *SnapFanout) View(ctx context.Context, snapID, userID uuid.UUID) (*models.SnapView, error) {
	snap, err := f.snaps.GetByID(ctx, snapID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Recipient(userID); !ok {
		return nil, apperr.ErrNotRecipient
	}

	now := f.opts.Now()
	if snap.IsExpired || snap.ExpiredAt(now) {
		if !snap.IsExpired {
			if err := f.snaps.MarkExpired(ctx, snap.ID); err != nil {
				f.log.Warn("Failed to flag snap expired", "snapID", snap.ID, "error", err)
			}
		}
		return nil, apperr.ErrSnapExpired
	}

	first, err := f.snaps.RecordView(ctx, snap.ID, userID, now)
	if errors.Is(err, apperr.ErrSnapExpired) {
		if err := f.snaps.MarkExpired(ctx, snap.ID); err != nil {
			f.log.Warn("Failed to flag snap expired", "snapID", snap.ID, "error", err)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if first {
		snap, err = f.snaps.GetByID(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
		f.log.Debug("Snap viewed", "snapID", snap.ID, "userID", userID, "viewCount", snap.ViewCount)
	}
	rc, _ := snap.Recipient(userID)

	cred, err := f.media.SignedURL(ctx, snap.MediaRef, f.opts.CredentialTTL)
	if err != nil {
		return nil, apperr.Internal("sign snap media", err)
	}
	return &models.SnapView{
		Snap:       snap,
		Recipient:  *rc,
		FirstView:  first,
		Credential: cred,
	}, nil
}

// Reap deletes snaps that expired more than the reap grace ago. Until then
// an expired snap stays readable as expired, so late viewers get
// AlreadyExpired rather than NotFound.
func (f *SnapFanout) Reap(ctx context.Context) (int64, error) {
	n, err := f.snaps.DeleteExpired(ctx, f.opts.Now().Add(-f.opts.ReapGrace))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.log.Info("Expired snaps reaped", "count", n)
	}
	return n, nil
}

// RunReaper calls Reap every interval until ctx is done.
func (f *SnapFanout) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Reap(ctx); err != nil {
				f.log.Error("Snap reaper pass failed", "error", err)
			}
		}
	}
}

func uniqueRecipients(senderID uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == senderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
