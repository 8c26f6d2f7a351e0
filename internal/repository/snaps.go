package repository

import (
	"context"
	"errors"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/database"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SnapRepo interface {
	Create(ctx context.Context, snap *models.Snap) (*models.Snap, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Snap, error)
	MarkDelivered(ctx context.Context, snapID, recipientID uuid.UUID, at time.Time) error
	// RecordView flips the recipient's viewed flag and bumps view_count, both
	// only on the first view. It reports whether this call was the first and
	// fails with ErrSnapExpired once at is past expires_at.
	RecordView(ctx context.Context, snapID, recipientID uuid.UUID, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, snapID uuid.UUID) error
	// DeleteExpired physically removes snaps whose expires_at <= cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type snapRepo struct {
	db  *database.Database
	log *logger.Logger
}

func NewSnapRepo(db *database.Database, log *logger.Logger) SnapRepo {
	return &snapRepo{db: db, log: log.With("repo", "SnapRepo")}
}

func (r *snapRepo) Create(ctx context.Context, snap *models.Snap) (*models.Snap, error) {
	out := &models.Snap{}
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO snaps (sender_id, media_ref, expires_at)
			VALUES ($1, $2, $3)
			RETURNING id, sender_id, media_ref, expires_at, is_expired, view_count, created_at
		`
		if err := tx.QueryRow(ctx, query, snap.SenderID, snap.MediaRef, snap.ExpiresAt).Scan(
			&out.ID, &out.SenderID, &out.MediaRef, &out.ExpiresAt, &out.IsExpired, &out.ViewCount, &out.CreatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, rc := range snap.Recipients {
			batch.Queue(`INSERT INTO snap_recipients (snap_id, recipient_id, position) VALUES ($1, $2, $3)`, out.ID, rc.RecipientID, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		out.Recipients = make([]models.SnapRecipient, len(snap.Recipients))
		for i, rc := range snap.Recipients {
			out.Recipients[i] = models.SnapRecipient{RecipientID: rc.RecipientID}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("create snap", err)
	}
	return out, nil
}

func (r *snapRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Snap, error) {
	return getSnap(ctx, r.db.Pool, id)
}

func getSnap(ctx context.Context, q querier, id uuid.UUID) (*models.Snap, error) {
	var s models.Snap
	err := q.QueryRow(ctx, `
		SELECT id, sender_id, media_ref, expires_at, is_expired, view_count, created_at
		FROM snaps WHERE id = $1`, id,
	).Scan(&s.ID, &s.SenderID, &s.MediaRef, &s.ExpiresAt, &s.IsExpired, &s.ViewCount, &s.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, apperr.ErrSnapNotFound, "get snap")
	}

	rows, err := q.Query(ctx, `
		SELECT recipient_id, delivered_at, viewed_at, viewed
		FROM snap_recipients WHERE snap_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, apperr.Internal("get snap recipients", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc models.SnapRecipient
		if err := rows.Scan(&rc.RecipientID, &rc.DeliveredAt, &rc.ViewedAt, &rc.Viewed); err != nil {
			return nil, apperr.Internal("scan snap recipient", err)
		}
		s.Recipients = append(s.Recipients, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("get snap recipients", err)
	}
	return &s, nil
}

func (r *snapRepo) MarkDelivered(ctx context.Context, snapID, recipientID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE snap_recipients SET delivered_at = $3
		WHERE snap_id = $1 AND recipient_id = $2 AND delivered_at IS NULL`, snapID, recipientID, at)
	if err != nil {
		return apperr.Internal("mark snap delivered", err)
	}
	return nil
}

func (r *snapRepo) RecordView(ctx context.Context, snapID, recipientID uuid.UUID, at time.Time) (bool, error) {
	first := false
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE snap_recipients SET viewed = TRUE, viewed_at = $3
			WHERE snap_id = $1 AND recipient_id = $2 AND NOT viewed
			  AND EXISTS (SELECT 1 FROM snaps WHERE id = $1 AND expires_at > $3)`, snapID, recipientID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var live bool
			err := tx.QueryRow(ctx, `SELECT expires_at > $2 FROM snaps WHERE id = $1`, snapID, at).Scan(&live)
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.ErrSnapNotFound
			}
			if err != nil {
				return err
			}
			if !live {
				return apperr.ErrSnapExpired
			}
			return nil
		}
		first = true
		_, err = tx.Exec(ctx, `UPDATE snaps SET view_count = view_count + 1 WHERE id = $1`, snapID)
		return err
	})
	if apperr.CodeOf(err) == apperr.CodeNotFound || apperr.CodeOf(err) == apperr.CodeAlreadyExpired {
		return false, err
	}
	if err != nil {
		return false, apperr.Internal("record snap view", err)
	}
	return first, nil
}

func (r *snapRepo) MarkExpired(ctx context.Context, snapID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE snaps SET is_expired = TRUE WHERE id = $1 AND NOT is_expired`, snapID); err != nil {
		return apperr.Internal("mark snap expired", err)
	}
	return nil
}

func (r *snapRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM snaps WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, apperr.Internal("reap snaps", err)
	}
	return tag.RowsAffected(), nil
}
