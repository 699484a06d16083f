package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/justestif/go-spotify-overlay/internal/api"
)

const userAgent = "spotify-overlay/1.0"

// maxBodySize caps how much of a response is read.
const maxBodySize = 1 << 20

// ErrUserNotFound is returned by User for an unknown user ID.
var ErrUserNotFound = errors.New("user not found")

// Client talks to the overlay server's public API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Poll fetches the now-playing state for userID. It never fails: transport
// and decoding problems come back as OutcomeUpstreamError.
func (c *Client) Poll(ctx context.Context, userID string) PollResult {
	status, body, err := c.get(ctx, "/api/now-playing/"+url.PathEscape(userID))
	if err != nil {
		return PollResult{Outcome: OutcomeUpstreamError, Err: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return PollResult{Outcome: OutcomeNotFound}
	case http.StatusUnauthorized:
		return PollResult{Outcome: OutcomeAuthExpired}
	default:
		return PollResult{
			Outcome: OutcomeUpstreamError,
			Err:     fmt.Errorf("unexpected status %d: %s", status, errorMessage(body)),
		}
	}

	var np api.NowPlaying
	if err := json.Unmarshal(body, &np); err != nil {
		return PollResult{Outcome: OutcomeUpstreamError, Err: fmt.Errorf("parsing now-playing response: %w", err)}
	}

	if np.Track == nil {
		return PollResult{Outcome: OutcomeNotPlaying}
	}
	return PollResult{Outcome: OutcomeTrack, IsPlaying: np.IsPlaying, Track: np.Track}
}

// User fetches the owner's public profile.
func (c *Client) User(ctx context.Context, userID string) (*api.User, error) {
	status, body, err := c.get(ctx, "/api/user/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", status, errorMessage(body))
	}

	var u api.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("parsing user response: %w", err)
	}
	return &u, nil
}

// get performs a single GET and returns the status and body.
func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// errorMessage extracts {error} from a body, for logging.
func errorMessage(body []byte) string {
	var e api.Error
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}
