package chat

import (
	"context"
	"time"

	"dmcore-backend/internal/models"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
)

// UnreadCounter owns the per-participant counters. Every mutation is a single
// atomic statement against the cursor row.
type UnreadCounter struct {
	cursors repository.CursorRepo
}

func NewUnreadCounter(cursors repository.CursorRepo) *UnreadCounter {
	return &UnreadCounter{cursors: cursors}
}

func (u *UnreadCounter) Increment(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	return u.cursors.AddUnread(ctx, roomID, userID, 1)
}

// Reset moves the read watermark to messageID and zeroes the counter.
func (u *UnreadCounter) Reset(ctx context.Context, roomID, userID uuid.UUID, messageID *uuid.UUID, at time.Time) (*models.ParticipantCursor, error) {
	return u.cursors.MarkRead(ctx, roomID, userID, messageID, at)
}

func (u *UnreadCounter) Ensure(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	return u.cursors.Ensure(ctx, roomID, userID)
}

func (u *UnreadCounter) Get(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	return u.cursors.Get(ctx, roomID, userID)
}

func (u *UnreadCounter) Total(ctx context.Context, userID uuid.UUID) (int, error) {
	return u.cursors.TotalUnread(ctx, userID)
}
