package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS room_members (
			room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			member_id UUID NOT NULL,
			display_name TEXT NOT NULL,
			PRIMARY KEY (room_id, member_id)
		);
		CREATE TABLE IF NOT EXISTS transactions (
			room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			id BIGINT NOT NULL,
			group_id UUID NOT NULL,
			from_member UUID NOT NULL,
			to_member UUID NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			label TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (room_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_group ON transactions(room_id, group_id);
	`)
	return err
}
