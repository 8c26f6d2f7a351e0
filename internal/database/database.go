package database

import (
	"context"
	"fmt"

	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewConnection(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Database, error) {
	return Connect(ctx, cfg.GetDatabaseURL(), log)
}

func Connect(ctx context.Context, url string, log *logger.Logger) (*Database, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	log.Info("Successfully connected to database")
	return &Database{Pool: pool}, nil
}

func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func RunMigrations(ctx context.Context, db *Database, log *logger.Logger) error {
	createRoomsTable := `
	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		participant_low UUID NOT NULL,
		participant_high UUID NOT NULL,
		type VARCHAR(32) NOT NULL DEFAULT 'direct' CHECK (type IN ('direct', 'support_request')),
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		blocked_by UUID,
		last_message_text TEXT NOT NULL DEFAULT '',
		last_message_type VARCHAR(32),
		last_message_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (participant_low, participant_high),
		CHECK (participant_low < participant_high)
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		type VARCHAR(32) NOT NULL CHECK (type IN ('text', 'image', 'snap', 'shared_content')),
		payload TEXT NOT NULL DEFAULT '',
		media_ref TEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'seen')),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp()
	);`

	createCursorsTable := `
	CREATE TABLE IF NOT EXISTS participant_cursors (
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		last_read_message_id UUID REFERENCES messages(id) ON DELETE SET NULL,
		last_read_at TIMESTAMP WITH TIME ZONE,
		unread_count INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
		PRIMARY KEY (room_id, user_id)
	);`

	createSnapsTable := `
	CREATE TABLE IF NOT EXISTS snaps (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sender_id UUID NOT NULL,
		media_ref TEXT NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		is_expired BOOLEAN NOT NULL DEFAULT FALSE,
		view_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);`

	createSnapRecipientsTable := `
	CREATE TABLE IF NOT EXISTS snap_recipients (
		snap_id UUID NOT NULL REFERENCES snaps(id) ON DELETE CASCADE,
		recipient_id UUID NOT NULL,
		position INTEGER NOT NULL,
		delivered_at TIMESTAMP WITH TIME ZONE,
		viewed_at TIMESTAMP WITH TIME ZONE,
		viewed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (snap_id, recipient_id)
	);`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_rooms_participant_high ON rooms(participant_high);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_message_at ON rooms(last_message_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_status_pending ON messages(room_id, sender_id) WHERE status <> 'seen';
	CREATE INDEX IF NOT EXISTS idx_cursors_user ON participant_cursors(user_id);
	CREATE INDEX IF NOT EXISTS idx_snaps_expires_at ON snaps(expires_at);
	CREATE INDEX IF NOT EXISTS idx_snap_recipients_recipient ON snap_recipients(recipient_id);`

	migrations := []string{
		createRoomsTable,
		createMessagesTable,
		createCursorsTable,
		createSnapsTable,
		createSnapRecipientsTable,
		createIndexes,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	log.Info("Database migrations completed successfully")
	return nil
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (db *Database) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.Pool, fn)
}

func (db *Database) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.Pool.QueryRow(ctx, sql, args...)
}

func (db *Database) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.Pool.Query(ctx, sql, args...)
}

func (db *Database) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.Pool.Exec(ctx, sql, args...)
}
