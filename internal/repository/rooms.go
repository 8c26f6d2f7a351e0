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

type RoomRepo interface {
	// GetOrCreate is an idempotent upsert on (low, high); concurrent callers
	// all receive the same row.
	GetOrCreate(ctx context.Context, low, high uuid.UUID, roomType models.RoomType) (*models.Room, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.RoomSummary, error)
	// UpdateSnapshot only moves the last-message snapshot forward in time.
	UpdateSnapshot(ctx context.Context, roomID uuid.UUID, text string, msgType models.MessageType, at time.Time) error
	SetBlocked(ctx context.Context, roomID uuid.UUID, blocked bool, by *uuid.UUID) (*models.Room, error)
}

type roomRepo struct {
	db  *database.Database
	log *logger.Logger
}

func NewRoomRepo(db *database.Database, log *logger.Logger) RoomRepo {
	return &roomRepo{db: db, log: log.With("repo", "RoomRepo")}
}

const roomColumns = `id, participant_low, participant_high, type, is_blocked, blocked_by,
	last_message_text, last_message_type, last_message_at, created_at, updated_at`

func scanRoom(row pgx.Row, r *models.Room, extra ...any) error {
	dest := []any{
		&r.ID, &r.ParticipantLow, &r.ParticipantHigh, &r.Type, &r.IsBlocked, &r.BlockedBy,
		&r.LastMessageText, &r.LastMessageType, &r.LastMessageAt, &r.CreatedAt, &r.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *roomRepo) GetOrCreate(ctx context.Context, low, high uuid.UUID, roomType models.RoomType) (*models.Room, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row for the
	// loser of a first-contact race.
	query := `
		INSERT INTO rooms (participant_low, participant_high, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_low, participant_high)
		DO UPDATE SET participant_low = EXCLUDED.participant_low
		RETURNING ` + roomColumns

	var room models.Room
	if err := scanRoom(r.db.QueryRow(ctx, query, low, high, roomType), &room); err != nil {
		return nil, apperr.Internal("resolve room", err)
	}
	return &room, nil
}

func (r *roomRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id), &room)
	if err != nil {
		return nil, notFoundOr(err, apperr.ErrRoomNotFound, "get room")
	}
	return &room, nil
}

func (r *roomRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.RoomSummary, error) {
	query := `
		SELECT ` + prefixed("r", roomColumns) + `, COALESCE(c.unread_count, 0)
		FROM rooms r
		LEFT JOIN participant_cursors c ON c.room_id = r.id AND c.user_id = $1
		WHERE r.participant_low = $1 OR r.participant_high = $1
		ORDER BY r.last_message_at DESC NULLS LAST, r.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperr.Internal("list rooms", err)
	}
	defer rows.Close()

	out := []*models.RoomSummary{}
	for rows.Next() {
		var s models.RoomSummary
		if err := scanRoom(rows, &s.Room, &s.UnreadCount); err != nil {
			return nil, apperr.Internal("scan room", err)
		}
		s.PeerID = s.Room.Other(userID)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list rooms", err)
	}
	return out, nil
}

func (r *roomRepo) UpdateSnapshot(ctx context.Context, roomID uuid.UUID, text string, msgType models.MessageType, at time.Time) error {
	query := `
		UPDATE rooms
		SET last_message_text = $2, last_message_type = $3, last_message_at = $4, updated_at = NOW()
		WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $4)
	`
	if _, err := r.db.Exec(ctx, query, roomID, text, msgType, at); err != nil {
		return apperr.Internal("update room snapshot", err)
	}
	return nil
}

func (r *roomRepo) SetBlocked(ctx context.Context, roomID uuid.UUID, blocked bool, by *uuid.UUID) (*models.Room, error) {
	if !blocked {
		by = nil
	}
	query := `
		UPDATE rooms SET is_blocked = $2, blocked_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + roomColumns
	var room models.Room
	if err := scanRoom(r.db.QueryRow(ctx, query, roomID, blocked, by), &room); err != nil {
		return nil, notFoundOr(err, apperr.ErrRoomNotFound, "set blocked")
	}
	return &room, nil
}
