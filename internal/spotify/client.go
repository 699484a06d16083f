// Package spotify provides a wrapper around the Spotify Web API for the
// profile and playback calls the overlay needs.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Spotify Web API root. It must end with a slash.
const DefaultBaseURL = "https://api.spotify.com/v1/"

// DefaultTimeout bounds every upstream call.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized is returned when Spotify rejects the access token.
var ErrUnauthorized = errors.New("spotify rejected access token")

// API builds per-token clients that share one transport, timeout and
// optional rate limiter.
type API struct {
	baseURL string
	timeout time.Duration
	base    http.RoundTripper
	limiter *rate.Limiter
}

// Option configures an API.
type Option func(*API)

// WithBaseURL points the API at a different root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(a *API) {
		if u != "" && u[len(u)-1] != '/' {
			u += "/"
		}
		a.baseURL = u
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *API) {
		a.timeout = d
	}
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *API) {
		a.base = rt
	}
}

// WithRateLimit makes playback calls wait on limiter before going out.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(a *API) {
		a.limiter = limiter
	}
}

// NewAPI creates an API with the given options.
func NewAPI(opts ...Option) *API {
	a := &API{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		base:    http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Client is a Spotify client bound to a single access token. The token is
// used as-is; refreshing is the caller's job.
type Client struct {
	api        *spotify.Client
	limiter    *rate.Limiter
	lastStatus *atomic.Int32
}

// ForToken returns a Client that authenticates with accessToken.
func (a *API) ForToken(accessToken string) *Client {
	status := &atomic.Int32{}
	httpClient := &http.Client{
		Timeout: a.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: &statusTransport{base: a.base, last: status},
		},
	}

	return &Client{
		api:        spotify.New(httpClient, spotify.WithBaseURL(a.baseURL)),
		limiter:    a.limiter,
		lastStatus: status,
	}
}

// Profile returns the current user's Spotify profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", c.classify(err))
	}
	return convertProfile(user), nil
}

// CurrentlyPlaying returns what the user is playing right now. A nil
// Playback.Track means no active session.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*Playback, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	playing, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting currently playing: %w", c.classify(err))
	}
	return convertPlayback(playing), nil
}

// classify turns a 401 from Spotify into ErrUnauthorized. The status seen by
// the transport is checked too, since an error body Spotify fails to decode
// loses its status code.
func (c *Client) classify(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if c.lastStatus.Load() == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return err
}

// statusTransport records the status code of the last response.
type statusTransport struct {
	base http.RoundTripper
	last *atomic.Int32
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.last.Store(0)
		return nil, err
	}
	t.last.Store(int32(resp.StatusCode))
	return resp, nil
}
