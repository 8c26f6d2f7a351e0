package repository

import (
	"context"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/database"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CursorRepo interface {
	// Ensure creates the (room, user) cursor if it does not exist yet.
	Ensure(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error)
	Get(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error)
	// AddUnread applies delta to the persisted counter in one statement,
	// clamped at zero, and returns the new value.
	AddUnread(ctx context.Context, roomID, userID uuid.UUID, delta int) (int, error)
	// MarkRead moves the cursor to messageID and resets the counter to zero.
	MarkRead(ctx context.Context, roomID, userID uuid.UUID, messageID *uuid.UUID, at time.Time) (*models.ParticipantCursor, error)
	TotalUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type cursorRepo struct {
	db  *database.Database
	log *logger.Logger
}

func NewCursorRepo(db *database.Database, log *logger.Logger) CursorRepo {
	return &cursorRepo{db: db, log: log.With("repo", "CursorRepo")}
}

const cursorColumns = `room_id, user_id, last_read_message_id, last_read_at, unread_count`

func scanCursor(row pgx.Row, c *models.ParticipantCursor) error {
	return row.Scan(&c.RoomID, &c.UserID, &c.LastReadMessageID, &c.LastReadAt, &c.UnreadCount)
}

func (r *cursorRepo) Ensure(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	query := `
		INSERT INTO participant_cursors (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO UPDATE SET room_id = EXCLUDED.room_id
		RETURNING ` + cursorColumns
	var c models.ParticipantCursor
	if err := scanCursor(r.db.QueryRow(ctx, query, roomID, userID), &c); err != nil {
		return nil, apperr.Internal("ensure cursor", err)
	}
	return &c, nil
}

func (r *cursorRepo) Get(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	var c models.ParticipantCursor
	err := scanCursor(r.db.QueryRow(ctx, `SELECT `+cursorColumns+` FROM participant_cursors WHERE room_id = $1 AND user_id = $2`, roomID, userID), &c)
	if err != nil {
		return nil, notFoundOr(err, apperr.NotFound("cursor not found"), "get cursor")
	}
	return &c, nil
}

func (r *cursorRepo) AddUnread(ctx context.Context, roomID, userID uuid.UUID, delta int) (int, error) {
	query := `
		INSERT INTO participant_cursors (room_id, user_id, unread_count)
		VALUES ($1, $2, GREATEST($3::int, 0))
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET unread_count = GREATEST(participant_cursors.unread_count + $3::int, 0)
		RETURNING unread_count
	`
	var n int
	if err := r.db.QueryRow(ctx, query, roomID, userID, delta).Scan(&n); err != nil {
		return 0, apperr.Internal("add unread", err)
	}
	return n, nil
}

func (r *cursorRepo) MarkRead(ctx context.Context, roomID, userID uuid.UUID, messageID *uuid.UUID, at time.Time) (*models.ParticipantCursor, error) {
	query := `
		INSERT INTO participant_cursors (room_id, user_id, last_read_message_id, last_read_at, unread_count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id,
			last_read_at = EXCLUDED.last_read_at,
			unread_count = 0
		RETURNING ` + cursorColumns
	var c models.ParticipantCursor
	if err := scanCursor(r.db.QueryRow(ctx, query, roomID, userID, messageID, at), &c); err != nil {
		return nil, apperr.Internal("mark read", err)
	}
	return &c, nil
}

func (r *cursorRepo) TotalUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(unread_count), 0)::int FROM participant_cursors WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, apperr.Internal("total unread", err)
	}
	return n, nil
}
