package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-overlay/internal/store"
)

// RefreshMargin is how long before expiry a token is already treated as
// stale, to absorb clock skew and request latency.
const RefreshMargin = 5 * time.Minute

// Refresher keeps stored access tokens usable by exchanging refresh tokens
// with Spotify's token endpoint.
type Refresher struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	store      store.Store
	locks      *store.Locker
	clock      clockwork.Clock
	logger     *log.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock sets the clock used for staleness checks and new expiries.
func WithClock(c clockwork.Clock) RefresherOption {
	return func(r *Refresher) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// NewRefresher creates a Refresher. locks must be the same Locker used by
// every other writer of the store.
func NewRefresher(cfg Config, st store.Store, locks *store.Locker, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		oauth:      NewOAuthConfig(cfg),
		httpClient: cfg.httpClient(),
		store:      st,
		locks:      locks,
		clock:      clockwork.NewRealClock(),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stale reports whether rec's access token is expired or within
// RefreshMargin of expiring.
func (r *Refresher) Stale(rec *store.Record) bool {
	return !r.clock.Now().Before(rec.ExpiresAt.Add(-RefreshMargin))
}

// EnsureFresh refreshes userID's access token if it is stale. A fresh token
// costs no upstream call. On failure the stored record is left untouched and
// the error wraps ErrRefreshFailed; an unknown user yields store.ErrNotFound.
func (r *Refresher) EnsureFresh(ctx context.Context, userID string) error {
	unlock := r.locks.Lock(userID)
	defer unlock()

	rec, err := r.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	if !r.Stale(rec) {
		return nil
	}

	return r.refreshLocked(ctx, rec)
}

// ForceRefresh refreshes userID's access token regardless of its expiry,
// after Spotify rejected it. If the stored token no longer matches rejected,
// another request already refreshed it and no upstream call is made.
func (r *Refresher) ForceRefresh(ctx context.Context, userID, rejected string) error {
	unlock := r.locks.Lock(userID)
	defer unlock()

	rec, err := r.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	if rejected != "" && rec.AccessToken != rejected {
		return nil
	}

	return r.refreshLocked(ctx, rec)
}

// refreshLocked performs the token exchange. Caller must hold the user's lock.
func (r *Refresher) refreshLocked(ctx context.Context, rec *store.Record) error {
	logger := r.logger.With("user", rec.UserID)

	if rec.RefreshToken == "" {
		logger.Warn("no refresh token stored")
		return fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// An empty access token forces the source to hit the token endpoint.
	src := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		logger.Warn("token refresh rejected", "code", retrieveErrorCode(err))
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	now := r.clock.Now()
	updated := *rec
	updated.AccessToken = tok.AccessToken
	updated.ExpiresAt = tokenExpiry(tok, now)
	updated.UpdatedAt = now
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}

	if err := r.store.Put(ctx, &updated); err != nil {
		return fmt.Errorf("saving refreshed token: %w", err)
	}

	logger.Debug("access token refreshed",
		"expires_at", updated.ExpiresAt,
		"rotated", updated.RefreshToken != rec.RefreshToken)
	return nil
}

// retrieveErrorCode extracts the OAuth error code ("invalid_grant", ...)
// for logging without the response body.
func retrieveErrorCode(err error) string {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode != "" {
			return rErr.ErrorCode
		}
		if rErr.Response != nil {
			return http.StatusText(rErr.Response.StatusCode)
		}
	}
	return "transport"
}
