package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-overlay/internal/spotify"
	"github.com/justestif/go-spotify-overlay/internal/store"
)

// Flow drives the authorization code flow that creates or updates an
// overlay owner's credential record.
type Flow struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	states     *StateStore
	api        *spotify.API
	store      store.Store
	locks      *store.Locker
	clock      clockwork.Clock
	logger     *log.Logger
	newID      func() string
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowClock sets the clock used for record timestamps.
func WithFlowClock(c clockwork.Clock) FlowOption {
	return func(f *Flow) {
		f.clock = c
	}
}

// WithFlowLogger sets the logger.
func WithFlowLogger(l *log.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = l
	}
}

// NewFlow creates a Flow. api is used for the profile lookup after the code
// exchange.
func NewFlow(cfg Config, states *StateStore, api *spotify.API, st store.Store, locks *store.Locker, opts ...FlowOption) *Flow {
	f := &Flow{
		oauth:      NewOAuthConfig(cfg),
		httpClient: cfg.httpClient(),
		states:     states,
		api:        api,
		store:      st,
		locks:      locks,
		clock:      clockwork.NewRealClock(),
		logger:     log.Default(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin issues a state value and returns the Spotify authorization URL to
// redirect the owner to.
func (f *Flow) Begin() (string, error) {
	state, err := f.states.Issue()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return f.oauth.AuthCodeURL(state), nil
}

// Complete validates state, exchanges code for tokens, and stores the
// credential. It returns the owner's opaque user ID, which is reused when the
// Spotify account is already known.
func (f *Flow) Complete(ctx context.Context, code, state string) (string, error) {
	if !f.states.Consume(state) {
		return "", ErrStateMismatch
	}
	if code == "" {
		return "", ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	tok, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		f.logger.Warn("code exchange rejected", "code", retrieveErrorCode(err))
		return "", fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token issued", ErrExchangeFailed)
	}

	profile, err := f.api.ForToken(tok.AccessToken).Profile(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProfileFailed, err)
	}

	now := f.clock.Now()
	rec := &store.Record{
		AccountID:    profile.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tokenExpiry(tok, now),
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	userID, err := f.save(ctx, rec)
	if errors.Is(err, store.ErrConflict) {
		// A concurrent callback registered the account first; adopt its ID.
		userID, err = f.save(ctx, rec)
	}
	if err != nil {
		return "", fmt.Errorf("saving credential: %w", err)
	}

	f.logger.Info("owner authorized", "user", userID, "account", profile.ID)
	return userID, nil
}

// save upserts rec under the user ID already bound to its account, minting
// a new one for unknown accounts.
func (f *Flow) save(ctx context.Context, rec *store.Record) (string, error) {
	userID, err := f.store.FindByAccountID(ctx, rec.AccountID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		userID = f.newID()
	case err != nil:
		return "", err
	}

	unlock := f.locks.Lock(userID)
	defer unlock()

	r := *rec
	r.UserID = userID

	existing, err := f.store.Get(ctx, userID)
	switch {
	case err == nil:
		r.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}

	if err := f.store.Put(ctx, &r); err != nil {
		return "", err
	}
	return userID, nil
}
