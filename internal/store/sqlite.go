package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id       TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL UNIQUE,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    INTEGER NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
)`

// SQLiteStore stores records in a SQLite database. Each statement runs in
// its own transaction so a returned Put is already committed.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. The path can be ":memory:" for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer keeps ":memory:" databases on a single connection and
	// avoids SQLITE_BUSY on files.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves a record by user ID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Record, error) {
	query := `
		SELECT user_id, account_id, access_token, refresh_token, expires_at,
		       display_name, avatar_url, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`
	var (
		rec                             Record
		expiresAt, createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.AccountID,
		&rec.AccessToken,
		&rec.RefreshToken,
		&expiresAt,
		&rec.DisplayName,
		&rec.AvatarURL,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	rec.ExpiresAt = time.UnixMilli(expiresAt)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

// Put creates or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("cannot store record without user ID")
	}

	query := `
		INSERT INTO credentials (user_id, account_id, access_token, refresh_token, expires_at,
		                         display_name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			account_id = excluded.account_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.UserID,
		rec.AccountID,
		rec.AccessToken,
		rec.RefreshToken,
		rec.ExpiresAt.UnixMilli(),
		rec.DisplayName,
		rec.AvatarURL,
		rec.CreatedAt.UnixMilli(),
		rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		// user_id conflicts are absorbed by the upsert, so a unique
		// violation here is always account_id.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrConflict
		}
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting an absent user is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// FindByAccountID returns the user ID registered for a Spotify account.
func (s *SQLiteStore) FindByAccountID(ctx context.Context, accountID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM credentials WHERE account_id = ?`, accountID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying account: %w", err)
	}
	return userID, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
