// Package nowplaying serves an overlay owner's current Spotify playback,
// keeping the stored access token usable along the way.
package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-overlay/internal/spotify"
	"github.com/justestif/go-spotify-overlay/internal/store"
)

var (
	// ErrAuthExpired is returned when the credential is unusable even after a
	// reactive refresh. The owner must authorize again.
	ErrAuthExpired = errors.New("spotify authorization expired")

	// ErrUpstream is returned for transport failures and unexpected Spotify
	// responses. Callers retry by polling again.
	ErrUpstream = errors.New("spotify request failed")
)

// DefaultTimeout bounds one Get, including any refreshes and the retry.
const DefaultTimeout = 10 * time.Second

// Result is one now-playing answer. Track is nil when nothing is playing.
type Result struct {
	IsPlaying bool
	Track     *spotify.Snapshot
}

// TokenRefresher abstracts the refresh manager for testing.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, userID string) error
	ForceRefresh(ctx context.Context, userID, rejected string) error
}

// PlaybackSource abstracts the Spotify API for testing.
type PlaybackSource interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.Playback, error)
}

// APISource adapts a spotify.API to PlaybackSource.
type APISource struct {
	API *spotify.API
}

// CurrentlyPlaying queries Spotify with accessToken.
func (s APISource) CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.Playback, error) {
	return s.API.ForToken(accessToken).CurrentlyPlaying(ctx)
}

// Service answers now-playing queries for overlay owners.
type Service struct {
	store     store.Store
	refresher TokenRefresher
	source    PlaybackSource
	timeout   time.Duration
	logger    *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the upper bound on one Get.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service.
func NewService(st store.Store, refresher TokenRefresher, source PlaybackSource, opts ...Option) *Service {
	s := &Service{
		store:     st,
		refresher: refresher,
		source:    source,
		timeout:   DefaultTimeout,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns what userID is playing. It fails with store.ErrNotFound,
// ErrAuthExpired or ErrUpstream; not playing is a normal Result.
//
// Upstream work is detached from ctx cancellation so a refresh is never
// abandoned halfway when the viewer disconnects.
func (s *Service) Get(ctx context.Context, userID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	logger := s.logger.With("user", userID)

	if _, err := s.store.Get(ctx, userID); err != nil {
		return nil, err
	}

	// A failed proactive refresh is not fatal; the current token may work.
	if err := s.refresher.EnsureFresh(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Warn("proactive refresh failed", "err", err)
	}

	pb, token, err := s.query(ctx, userID)
	if errors.Is(err, spotify.ErrUnauthorized) {
		logger.Info("access token rejected, refreshing")

		if err := s.refresher.ForceRefresh(ctx, userID, token); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			logger.Warn("reactive refresh failed", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrAuthExpired, err)
		}

		pb, _, err = s.query(ctx, userID)
		if errors.Is(err, spotify.ErrUnauthorized) {
			return nil, ErrAuthExpired
		}
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Warn("playback query failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	return &Result{IsPlaying: pb.IsPlaying, Track: pb.Track}, nil
}

// query reads the current access token and asks Spotify with it, returning
// the token used so a rejection can be matched against later refreshes.
func (s *Service) query(ctx context.Context, userID string) (*spotify.Playback, string, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	pb, err := s.source.CurrentlyPlaying(ctx, rec.AccessToken)
	return pb, rec.AccessToken, err
}
