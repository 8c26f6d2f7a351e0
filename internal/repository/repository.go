// Package repository holds the Postgres-backed stores for rooms, messages,
// participant cursors and snaps. Every counter or status mutation is a single
// conditional statement so concurrent handlers never read-modify-write.
package repository

import (
	"context"
	"errors"
	"strings"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/database"
	"dmcore-backend/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repos struct {
	Rooms    RoomRepo
	Messages MessageRepo
	Cursors  CursorRepo
	Snaps    SnapRepo
}

func New(db *database.Database, log *logger.Logger) *Repos {
	return &Repos{
		Rooms:    NewRoomRepo(db, log),
		Messages: NewMessageRepo(db, log),
		Cursors:  NewCursorRepo(db, log),
		Snaps:    NewSnapRepo(db, log),
	}
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func notFoundOr(err error, notFound error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return apperr.Internal(op, err)
}
