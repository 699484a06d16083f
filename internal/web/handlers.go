package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/justestif/go-spotify-overlay/internal/api"
	"github.com/justestif/go-spotify-overlay/internal/auth"
	"github.com/justestif/go-spotify-overlay/internal/nowplaying"
	"github.com/justestif/go-spotify-overlay/internal/store"
)

// callbackTimeout bounds the code exchange and profile fetch.
const callbackTimeout = 15 * time.Second

// Error messages returned in {error} bodies.
const (
	msgUserNotFound   = "User not found"
	msgAuthExpired    = "Token expired, re-authentication required"
	msgNowPlaying     = "Failed to fetch now playing"
	msgInternal       = "Internal server error"
	msgLoginFailed    = "Failed to start authorization"
	msgDeleteFailed   = "Failed to delete user"
	msgHealthDegraded = "Store unavailable"
)

// Authorizer runs the OAuth authorization code flow.
type Authorizer interface {
	Begin() (string, error)
	Complete(ctx context.Context, code, state string) (string, error)
}

// NowPlayingService answers now-playing queries.
type NowPlayingService interface {
	Get(ctx context.Context, userID string) (*nowplaying.Result, error)
}

// Handlers contains HTTP handlers for the overlay API.
type Handlers struct {
	flow        Authorizer
	nowPlaying  NowPlayingService
	store       store.Store
	locks       *store.Locker
	frontendURL string
	logger      *log.Logger
}

// NewHandlers creates a new Handlers instance. locks must be shared with the
// refresh manager so a deletion cannot be undone by an in-flight refresh.
func NewHandlers(flow Authorizer, np NowPlayingService, st store.Store, locks *store.Locker, frontendURL string, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{
		flow:        flow,
		nowPlaying:  np,
		store:       st,
		locks:       locks,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Health reports liveness and the number of registered owners (GET /health).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("counting users", "err", err)
		writeError(w, http.StatusServiceUnavailable, msgHealthDegraded)
		return
	}
	writeJSON(w, http.StatusOK, api.Health{Status: "ok", Users: n})
}

// Login redirects the owner to Spotify's consent page (GET /auth/login).
// No cookie is set; the state is remembered server-side.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.flow.Begin()
	if err != nil {
		h.logger.Error("starting authorization", "err", err)
		writeError(w, http.StatusInternalServerError, msgLoginFailed)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the OAuth flow (GET /callback) and redirects the owner
// to the dashboard, or to the frontend with a short error code.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if upstream := q.Get("error"); upstream != "" {
		h.logger.Info("authorization declined", "error", auth.SanitizeUpstreamCode(upstream))
		h.redirectError(w, r, auth.SanitizeUpstreamCode(upstream))
		return
	}

	// The credential write must not be abandoned if the browser goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), callbackTimeout)
	defer cancel()

	userID, err := h.flow.Complete(ctx, q.Get("code"), q.Get("state"))
	if err != nil {
		code := auth.ErrorCode(err)
		h.logger.Warn("authorization failed", "code", code, "err", err)
		h.redirectError(w, r, code)
		return
	}

	http.Redirect(w, r, DashboardURL(h.frontendURL, userID), http.StatusFound)
}

// GetUser returns the owner's public profile (GET /api/user/{userId}).
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	rec, err := h.store.Get(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if err != nil {
		h.logger.Error("loading user", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	resp := api.User{
		UserID:      rec.UserID,
		DisplayName: rec.DisplayName,
		CreatedAt:   rec.CreatedAt.UnixMilli(),
	}
	if rec.AvatarURL != "" {
		resp.Avatar = &rec.AvatarURL
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteUser removes the owner's credential (DELETE /api/user/{userId}).
// Deleting an unknown user succeeds.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	unlock := h.locks.Lock(userID)
	err := h.store.Delete(context.WithoutCancel(r.Context()), userID)
	unlock()

	if err != nil {
		h.logger.Error("deleting user", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, msgDeleteFailed)
		return
	}

	h.logger.Info("user deleted", "user", userID)
	writeJSON(w, http.StatusOK, api.Success{Success: true})
}

// NowPlaying returns the owner's current track (GET /api/now-playing/{userId}).
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	w.Header().Set("Cache-Control", "no-store")

	res, err := h.nowPlaying.Get(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toNowPlaying(res))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, nowplaying.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, msgAuthExpired)
	default:
		writeError(w, http.StatusInternalServerError, msgNowPlaying)
	}
}

func (h *Handlers) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL+"?"+url.Values{"error": {code}}.Encode(), http.StatusFound)
}

// DashboardURL is where a newly authorized owner lands.
func DashboardURL(frontendURL, userID string) string {
	return frontendURL + "/dashboard.html?" + url.Values{"userId": {userID}}.Encode()
}

func toNowPlaying(res *nowplaying.Result) api.NowPlaying {
	if res == nil || res.Track == nil {
		return api.NowPlaying{}
	}

	t := res.Track
	artists := t.ArtistNames
	if artists == nil {
		artists = []string{}
	}
	return api.NowPlaying{
		IsPlaying: res.IsPlaying,
		Track: &api.Track{
			ID:       t.TrackID,
			Name:     t.TrackName,
			Artists:  artists,
			Album:    t.AlbumName,
			AlbumArt: t.AlbumArtURL,
			Duration: t.DurationMs,
			Progress: t.ProgressMs,
			URL:      t.ExternalURL,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Error{Error: msg})
}
