// Package db provides PostgreSQL storage for overlay credentials.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-overlay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id       TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL UNIQUE,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Migrate creates the credentials table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Credentials returns a CredentialRepository.
func (db *DB) Credentials() *CredentialRepository {
	return &CredentialRepository{pool: db.pool, owner: db}
}

// OpenStore connects, migrates and returns the credentials repository as a
// store.Store. It matches store.Opener.
func OpenStore(ctx context.Context, databaseURL string) (store.Store, error) {
	database, err := New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}

	return database.Credentials(), nil
}

var _ store.Opener = OpenStore
