package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// EnsureSchema creates the waypoint blob table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	q := `
CREATE TABLE IF NOT EXISTS waypoint_blobs (
  key        text PRIMARY KEY,
  value      text NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create waypoint_blobs: %w", err)
	}
	return nil
}

// Blobs is a key/value view over the waypoint_blobs table.
type Blobs struct {
	DB *sql.DB
}

func (b Blobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := b.DB.QueryRowContext(ctx, `SELECT value FROM waypoint_blobs WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query waypoint_blobs: %w", err)
	}
	return []byte(value), true, nil
}

func (b Blobs) Put(ctx context.Context, key string, value []byte) error {
	q := `
INSERT INTO waypoint_blobs (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := b.DB.ExecContext(ctx, q, key, string(value)); err != nil {
		return fmt.Errorf("upsert waypoint_blobs: %w", err)
	}
	return nil
}
