// Package store provides durable storage for per-user Spotify credentials.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("not found")

// Record is the credential record for one overlay owner.
//
// UserID is the opaque, server-generated identifier embedded in overlay URLs.
// AccountID is the Spotify user ID and is unique across records.
type Record struct {
	UserID       string    `json:"userId"`
	AccountID    string    `json:"spotifyId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"tokenExpiry"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists credential records keyed by opaque user ID.
//
// Implementations must make every mutation durable before returning so that
// callers can acknowledge a request only after the write has landed.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, userID string) error
	FindByAccountID(ctx context.Context, accountID string) (string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// clone returns a copy so callers never share a record with the store's map.
func clone(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
