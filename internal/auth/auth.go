// Package auth manages Spotify OAuth credentials for overlay owners: the
// one-time authorization code flow and keeping access tokens fresh.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"regexp"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	spotifyoauth "golang.org/x/oauth2/spotify"
)

var (
	// ErrStateMismatch is returned when the OAuth state parameter is missing,
	// unknown, expired or already used.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrExchangeFailed is returned when Spotify rejects the authorization code.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrProfileFailed is returned when the Spotify profile cannot be fetched.
	ErrProfileFailed = errors.New("fetching Spotify profile failed")

	// ErrRefreshFailed is returned when Spotify rejects a refresh token or the
	// token endpoint cannot be reached.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Scopes requested from Spotify.
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
}

// defaultTokenLifetime is assumed when Spotify omits expires_in.
const defaultTokenLifetime = time.Hour

// Config holds the Spotify application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL override Spotify's endpoints when set.
	AuthURL  string
	TokenURL string

	// HTTPClient is used for token endpoint calls. Defaults to a client with
	// a 10 second timeout.
	HTTPClient *http.Client
}

// NewOAuthConfig builds the oauth2 configuration for Spotify.
func NewOAuthConfig(cfg Config) *oauth2.Config {
	endpoint := spotifyoauth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

func (cfg Config) httpClient() *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// tokenExpiry computes the absolute expiry of tok relative to now.
func tokenExpiry(tok *oauth2.Token, now time.Time) time.Time {
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now.Add(defaultTokenLifetime)
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Short error codes placed in redirect URLs.
const (
	CodeStateMismatch       = "state_mismatch"
	CodeExchangeFailed      = "exchange_failed"
	CodeProfileFailed       = "profile_failed"
	CodeServerError         = "server_error"
	CodeAuthorizationFailed = "authorization_failed"
)

// ErrorCode maps a Flow error to a short, stable code safe to put in a URL.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrStateMismatch):
		return CodeStateMismatch
	case errors.Is(err, ErrMissingCode), errors.Is(err, ErrExchangeFailed):
		return CodeExchangeFailed
	case errors.Is(err, ErrProfileFailed):
		return CodeProfileFailed
	default:
		return CodeServerError
	}
}

var upstreamCodePattern = regexp.MustCompile(`^[a-z_]{1,32}$`)

// SanitizeUpstreamCode passes through OAuth error codes such as
// "access_denied" and replaces anything else with a generic code.
func SanitizeUpstreamCode(code string) string {
	if upstreamCodePattern.MatchString(code) {
		return code
	}
	return CodeAuthorizationFailed
}
