package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-overlay/internal/store"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// CredentialRepository handles credential database operations.
type CredentialRepository struct {
	pool  *pgxpool.Pool
	owner *DB
}

// Get retrieves a credential record by user ID.
func (r *CredentialRepository) Get(ctx context.Context, userID string) (*store.Record, error) {
	query := `
		SELECT user_id, account_id, access_token, refresh_token, expires_at,
		       display_name, avatar_url, created_at, updated_at
		FROM credentials
		WHERE user_id = $1
	`
	var rec store.Record
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.AccountID,
		&rec.AccessToken,
		&rec.RefreshToken,
		&rec.ExpiresAt,
		&rec.DisplayName,
		&rec.AvatarURL,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &rec, nil
}

// Put creates or updates a credential record. created_at is never
// overwritten once set.
func (r *CredentialRepository) Put(ctx context.Context, rec *store.Record) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("cannot store record without user ID")
	}

	query := `
		INSERT INTO credentials (user_id, account_id, access_token, refresh_token, expires_at,
		                         display_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.AccountID,
		rec.AccessToken,
		rec.RefreshToken,
		rec.ExpiresAt,
		rec.DisplayName,
		rec.AvatarURL,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}

// Delete removes a credential record. Deleting an absent user is not an error.
func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM credentials WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// FindByAccountID returns the user ID registered for a Spotify account.
func (r *CredentialRepository) FindByAccountID(ctx context.Context, accountID string) (string, error) {
	query := `SELECT user_id FROM credentials WHERE account_id = $1`
	var userID string
	err := r.pool.QueryRow(ctx, query, accountID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying account: %w", err)
	}
	return userID, nil
}

// Count returns the number of stored credential records.
func (r *CredentialRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return n, nil
}

// Close closes the pool the repository was opened from.
func (r *CredentialRepository) Close() error {
	if r.owner != nil {
		r.owner.Close()
	}
	return nil
}

var _ store.Store = (*CredentialRepository)(nil)
