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

type MessageRepo interface {
	// Create persists msg with status Sent; id and created_at are assigned by the store.
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Latest(ctx context.Context, roomID uuid.UUID) (*models.Message, error)
	List(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error)
	// MarkDelivered moves a Sent message to Delivered and reports whether it did.
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkSeenUpTo moves every Sent/Delivered message not authored by readerID
	// with created_at <= upTo to Seen.
	MarkSeenUpTo(ctx context.Context, roomID, readerID uuid.UUID, upTo time.Time) (int64, error)
	// PromotePending moves every Sent message addressed to recipientID to
	// Delivered and returns the promoted rows.
	PromotePending(ctx context.Context, recipientID uuid.UUID) ([]*models.Message, error)
}

type messageRepo struct {
	db  *database.Database
	log *logger.Logger
}

func NewMessageRepo(db *database.Database, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

const messageColumns = `id, room_id, sender_id, type, payload, media_ref, status, created_at`

func scanMessage(row pgx.Row, m *models.Message) error {
	return row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Type, &m.Payload, &m.MediaRef, &m.Status, &m.CreatedAt)
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()
	out := []*models.Message{}
	for rows.Next() {
		var m models.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, type, payload, media_ref, status)
		VALUES ($1, $2, $3, $4, $5, 'sent')
		RETURNING ` + messageColumns

	var out models.Message
	err := scanMessage(r.db.QueryRow(ctx, query, msg.RoomID, msg.SenderID, msg.Type, msg.Payload, msg.MediaRef), &out)
	if err != nil {
		return nil, apperr.Internal("insert message", err)
	}
	return &out, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var m models.Message
	if err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id), &m); err != nil {
		return nil, notFoundOr(err, apperr.ErrMessageNotFound, "get message")
	}
	return &m, nil
}

func (r *messageRepo) Latest(ctx context.Context, roomID uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var m models.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, roomID), &m); err != nil {
		return nil, notFoundOr(err, apperr.ErrMessageNotFound, "latest message")
	}
	return &m, nil
}

func (r *messageRepo) List(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, roomID, before, limit)
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, apperr.Internal("scan messages", err)
	}
	return msgs, nil
}

func (r *messageRepo) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE messages SET status = 'delivered' WHERE id = $1 AND status = 'sent'`, id)
	if err != nil {
		return false, apperr.Internal("mark delivered", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *messageRepo) MarkSeenUpTo(ctx context.Context, roomID, readerID uuid.UUID, upTo time.Time) (int64, error) {
	query := `
		UPDATE messages SET status = 'seen'
		WHERE room_id = $1
			AND sender_id <> $2
			AND created_at <= $3
			AND status IN ('sent', 'delivered')
	`
	tag, err := r.db.Exec(ctx, query, roomID, readerID, upTo)
	if err != nil {
		return 0, apperr.Internal("mark seen", err)
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepo) PromotePending(ctx context.Context, recipientID uuid.UUID) ([]*models.Message, error) {
	query := `
		UPDATE messages m SET status = 'delivered'
		FROM rooms r
		WHERE m.room_id = r.id
			AND (r.participant_low = $1 OR r.participant_high = $1)
			AND m.sender_id <> $1
			AND m.status = 'sent'
		RETURNING ` + prefixed("m", messageColumns)
	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		return nil, apperr.Internal("promote pending", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, apperr.Internal("scan promoted", err)
	}
	return msgs, nil
}
