package chat

import (
	"context"
	"testing"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapViewOnceThenExpiry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	snap, deliveries, err := env.svc.Snaps.Send(ctx, a, SnapInput{
		RecipientIDs: []uuid.UUID{b, c},
		MediaRef:     "snaps/a/clip.mp4",
		TTL:          60 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		assert.Equal(t, models.OutcomeDelivered, d.Outcome)
	}

	view, err := env.svc.Snaps.View(ctx, snap.ID, b)
	require.NoError(t, err)
	assert.True(t, view.FirstView)
	assert.True(t, view.Recipient.Viewed)
	assert.Equal(t, 1, view.Snap.ViewCount)
	assert.Equal(t, env.clock.Now().Add(time.Minute), view.Credential.ExpiresAt)
	assert.Contains(t, view.Credential.URL, "snaps/a/clip.mp4")

	// Repeat view is idempotent.
	again, err := env.svc.Snaps.View(ctx, snap.ID, b)
	require.NoError(t, err)
	assert.False(t, again.FirstView)
	assert.Equal(t, 1, again.Snap.ViewCount)
	assert.Equal(t, view.Recipient.ViewedAt, again.Recipient.ViewedAt)

	env.clock.Advance(61 * time.Second)
	_, err = env.svc.Snaps.View(ctx, snap.ID, c)
	assert.ErrorIs(t, err, apperr.ErrSnapExpired)

	// b's earlier view does not survive expiry either.
	_, err = env.svc.Snaps.View(ctx, snap.ID, b)
	assert.ErrorIs(t, err, apperr.ErrSnapExpired)

	stored, err := env.store.repos().Snaps.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsExpired)
	assert.Equal(t, 1, stored.ViewCount)
	rc, _ := stored.Recipient(c)
	assert.False(t, rc.Viewed)
}

func TestSnapExpiresExactlyAtDeadline(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	snap, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m", TTL: time.Minute})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.svc.Snaps.View(ctx, snap.ID, b)
	assert.ErrorIs(t, err, apperr.ErrSnapExpired)
}

func TestSnapFanoutSkipsBlockedRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	ac, err := env.svc.Rooms.GetOrCreateDirectRoom(ctx, a, c)
	require.NoError(t, err)
	_, err = env.svc.Rooms.SetBlocked(ctx, ac.ID, c, true)
	require.NoError(t, err)

	snap, deliveries, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b, c}, MediaRef: "m"})
	require.NoError(t, err)

	require.Len(t, deliveries, 2)
	assert.Equal(t, models.OutcomeDelivered, deliveries[0].Outcome)
	assert.Equal(t, models.OutcomeBlocked, deliveries[1].Outcome)
	assert.Nil(t, deliveries[1].MessageID)

	ab, err := env.svc.Rooms.GetOrCreateDirectRoom(ctx, a, b)
	require.NoError(t, err)
	projected := env.store.messagesIn(ab.ID)
	require.Len(t, projected, 1)
	assert.Equal(t, models.MessageTypeSnap, projected[0].Type)
	assert.Equal(t, snap.ID.String(), projected[0].Payload)
	assert.Equal(t, "m", *projected[0].MediaRef)
	assert.Equal(t, 1, env.store.unread(ab.ID, b))
	assert.Equal(t, "Snap", env.store.room(ab.ID).LastMessageText)

	assert.Empty(t, env.store.messagesIn(ac.ID))
	assert.Equal(t, 0, env.store.unread(ac.ID, c))

	stored, err := env.store.repos().Snaps.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, stored.Recipients, 2)
	rb, _ := stored.Recipient(b)
	rc, _ := stored.Recipient(c)
	assert.NotNil(t, rb.DeliveredAt)
	assert.Nil(t, rc.DeliveredAt)
	assert.False(t, rc.Viewed)
}

func TestSnapFanoutIsolatesFailures(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b, broken := uuid.New(), uuid.New(), uuid.New()
	env.store.failRoomsWith[broken] = true
	env.presence.setOnline(b, true)

	_, deliveries, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{broken, b}, MediaRef: "m"})
	require.NoError(t, err)

	require.Len(t, deliveries, 2)
	assert.Equal(t, models.OutcomeFailed, deliveries[0].Outcome)
	assert.Equal(t, "internal error", deliveries[0].Error)
	assert.Equal(t, models.OutcomeDelivered, deliveries[1].Outcome)

	got := eventsOf[realtime.NewMessage](env.presence.received(b))
	require.Len(t, got, 1)
	assert.Equal(t, models.MessageTypeSnap, got[0].Message.Type)
}

func TestSnapSendValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a := uuid.New()

	_, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, apperr.ErrMissingMedia)

	_, _, err = env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{a, uuid.Nil}, MediaRef: "m"})
	assert.ErrorIs(t, err, apperr.ErrNoRecipients)

	many := make([]uuid.UUID, 6)
	for i := range many {
		many[i] = uuid.New()
	}
	_, _, err = env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: many, MediaRef: "m"})
	assert.ErrorIs(t, err, apperr.ErrTooManyReceivers)

	b := uuid.New()
	snap, deliveries, err := env.svc.Snaps.Send(ctx, a, SnapInput{
		RecipientIDs: []uuid.UUID{b, b, a},
		MediaRef:     "m",
		TTL:          30 * 24 * time.Hour,
	})
	require.NoError(t, err)
	assert.Len(t, snap.Recipients, 1)
	assert.Len(t, deliveries, 1)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), snap.ExpiresAt)

	snap, _, err = env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m"})
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(time.Hour), snap.ExpiresAt)
}

func TestSnapViewRequiresRecipient(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	snap, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m"})
	require.NoError(t, err)

	_, err = env.svc.Snaps.View(ctx, snap.ID, a)
	assert.ErrorIs(t, err, apperr.ErrNotRecipient)
	_, err = env.svc.Snaps.View(ctx, snap.ID, uuid.New())
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	_, err = env.svc.Snaps.View(ctx, uuid.New(), b)
	assert.ErrorIs(t, err, apperr.ErrSnapNotFound)
}

func TestReapRemovesExpiredSnaps(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	short, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m", TTL: time.Minute})
	require.NoError(t, err)
	long, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m", TTL: 3 * time.Hour})
	require.NoError(t, err)

	// Past the one hour reap grace for the short snap only.
	env.clock.Advance(62 * time.Minute)
	n, err := env.svc.Snaps.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.svc.Snaps.View(ctx, short.ID, b)
	assert.ErrorIs(t, err, apperr.ErrSnapNotFound)
	_, err = env.svc.Snaps.View(ctx, long.ID, b)
	assert.NoError(t, err)
}

func TestSnapViewAfterReapPassIsExpired(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	snap, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b, c}, MediaRef: "m", TTL: 60 * time.Second})
	require.NoError(t, err)

	env.clock.Advance(61 * time.Second)
	n, err := env.svc.Snaps.Reap(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.svc.Snaps.View(ctx, snap.ID, c)
	assert.ErrorIs(t, err, apperr.ErrSnapExpired)
	assert.Equal(t, apperr.CodeAlreadyExpired, apperr.CodeOf(err))
}

func TestSnapViewRecordedAfterDeadlineIsRejected(t *testing.T) {
	var late *lateViewSnaps
	env := newTestEnvWith(func(r *repository.Repos) {
		late = &lateViewSnaps{SnapRepo: r.Snaps}
		r.Snaps = late
	})
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	snap, _, err := env.svc.Snaps.Send(ctx, a, SnapInput{RecipientIDs: []uuid.UUID{b}, MediaRef: "m", TTL: time.Minute})
	require.NoError(t, err)

	// The deadline passes between the expiry check and the view write.
	env.clock.Advance(59 * time.Second)
	late.skew = 2 * time.Second
	_, err = env.svc.Snaps.View(ctx, snap.ID, b)
	assert.ErrorIs(t, err, apperr.ErrSnapExpired)

	stored, err := env.store.repos().Snaps.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ViewCount)
	assert.True(t, stored.IsExpired)
}

// lateViewSnaps records views skew later than the caller asked.
type lateViewSnaps struct {
	repository.SnapRepo
	skew time.Duration
}

func (s *lateViewSnaps) RecordView(ctx context.Context, snapID, recipientID uuid.UUID, at time.Time) (bool, error) {
	return s.SnapRepo.RecordView(ctx, snapID, recipientID, at.Add(s.skew))
}
