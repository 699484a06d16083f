package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-overlay/internal/api"
	"github.com/justestif/go-spotify-overlay/internal/auth"
	"github.com/justestif/go-spotify-overlay/internal/nowplaying"
	"github.com/justestif/go-spotify-overlay/internal/spotify"
	"github.com/justestif/go-spotify-overlay/internal/store"
)

const testFrontend = "http://localhost:5173"

type stubFlow struct {
	authURL  string
	userID   string
	err      error
	gotCode  string
	gotState string
}

func (f *stubFlow) Begin() (string, error) {
	return f.authURL, nil
}

func (f *stubFlow) Complete(_ context.Context, code, state string) (string, error) {
	f.gotCode, f.gotState = code, state
	return f.userID, f.err
}

type stubNowPlaying struct {
	res *nowplaying.Result
	err error
}

func (s *stubNowPlaying) Get(context.Context, string) (*nowplaying.Result, error) {
	return s.res, s.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	return st
}

func newTestServer(t *testing.T, flow Authorizer, np NowPlayingService, st store.Store) http.Handler {
	t.Helper()
	h := NewHandlers(flow, np, st, store.NewLocker(), testFrontend, quietLogger())
	return NewServer(ServerConfig{AllowedOrigins: []string{testFrontend}, Logger: quietLogger()}, h).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	st := newTestStore(t)
	st.Put(context.Background(), &store.Record{UserID: "u1", AccountID: "a1"})
	st.Put(context.Background(), &store.Record{UserID: "u2", AccountID: "a2"})

	rec := do(t, newTestServer(t, &stubFlow{}, &stubNowPlaying{}, st), http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[api.Health](t, rec)
	if got.Status != "ok" || got.Users != 2 {
		t.Errorf("body = %+v, want ok with 2 users", got)
	}
}

func TestLogin(t *testing.T) {
	flow := &stubFlow{authURL: "https://accounts.spotify.com/authorize?state=abc"}
	rec := do(t, newTestServer(t, flow, &stubNowPlaying{}, newTestStore(t)), http.MethodGet, "/auth/login")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != flow.authURL {
		t.Errorf("Location = %q, want %q", loc, flow.authURL)
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Errorf("Set-Cookie = %q, want none", rec.Header().Get("Set-Cookie"))
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		flow     *stubFlow
		wantLoc  string
		wantCode string
	}{
		{
			name:    "success",
			query:   "?code=abc&state=xyz",
			flow:    &stubFlow{userID: "user-1"},
			wantLoc: testFrontend + "/dashboard.html?userId=user-1",
		},
		{
			name:    "owner declined",
			query:   "?error=access_denied&state=xyz",
			flow:    &stubFlow{},
			wantLoc: testFrontend + "?error=access_denied",
		},
		{
			name:    "upstream error is sanitized",
			query:   "?error=" + url.QueryEscape("<script>alert(1)</script>"),
			flow:    &stubFlow{},
			wantLoc: testFrontend + "?error=authorization_failed",
		},
		{
			name:    "state mismatch",
			query:   "?code=abc&state=forged",
			flow:    &stubFlow{err: auth.ErrStateMismatch},
			wantLoc: testFrontend + "?error=state_mismatch",
		},
		{
			name:    "exchange failure hides upstream body",
			query:   "?code=abc&state=xyz",
			flow:    &stubFlow{err: fmt.Errorf("%w: invalid_grant: Invalid authorization code", auth.ErrExchangeFailed)},
			wantLoc: testFrontend + "?error=exchange_failed",
		},
		{
			name:    "storage failure",
			query:   "?code=abc&state=xyz",
			flow:    &stubFlow{err: errors.New("disk full")},
			wantLoc: testFrontend + "?error=server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tt.flow, &stubNowPlaying{}, newTestStore(t)), http.MethodGet, "/callback"+tt.query)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}

func TestCallback_PassesCodeAndState(t *testing.T) {
	flow := &stubFlow{userID: "user-1"}
	do(t, newTestServer(t, flow, &stubNowPlaying{}, newTestStore(t)), http.MethodGet, "/callback?code=abc&state=xyz")

	if flow.gotCode != "abc" || flow.gotState != "xyz" {
		t.Errorf("Complete() got code=%q state=%q", flow.gotCode, flow.gotState)
	}
}

func TestGetUser(t *testing.T) {
	st := newTestStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Put(context.Background(), &store.Record{
		UserID:       "user-1",
		AccountID:    "spotify-user",
		AccessToken:  "secret-access",
		RefreshToken: "secret-refresh",
		DisplayName:  "Owner",
		AvatarURL:    "https://i.scdn.co/image/avatar",
		CreatedAt:    created,
	})
	st.Put(context.Background(), &store.Record{UserID: "user-2", AccountID: "other", DisplayName: "No Avatar"})
	h := newTestServer(t, &stubFlow{}, &stubNowPlaying{}, st)

	t.Run("found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/user/user-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body := rec.Body.String()
		if strings.Contains(body, "secret-") {
			t.Errorf("body leaks tokens: %s", body)
		}

		got := decode[api.User](t, rec)
		if got.UserID != "user-1" || got.DisplayName != "Owner" || got.CreatedAt != created.UnixMilli() {
			t.Errorf("body = %+v", got)
		}
		if got.Avatar == nil || *got.Avatar != "https://i.scdn.co/image/avatar" {
			t.Errorf("Avatar = %v", got.Avatar)
		}
	})

	t.Run("no avatar is null", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/user/user-2")
		if !strings.Contains(rec.Body.String(), `"avatar":null`) {
			t.Errorf("body = %s, want null avatar", rec.Body.String())
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/user/nobody")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if got := decode[api.Error](t, rec); got.Error == "" {
			t.Error("error message is empty")
		}
	})
}

func TestDeleteUser(t *testing.T) {
	st := newTestStore(t)
	st.Put(context.Background(), &store.Record{UserID: "user-1", AccountID: "spotify-user"})
	h := newTestServer(t, &stubFlow{}, &stubNowPlaying{}, st)

	for _, attempt := range []string{"first", "repeat"} {
		t.Run(attempt, func(t *testing.T) {
			rec := do(t, h, http.MethodDelete, "/api/user/user-1")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := decode[api.Success](t, rec); !got.Success {
				t.Errorf("body = %+v, want success", got)
			}
		})
	}

	if _, err := st.Get(context.Background(), "user-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if rec := do(t, h, http.MethodGet, "/api/user/user-1"); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rec.Code)
	}
}

func TestNowPlaying(t *testing.T) {
	track := &spotify.Snapshot{
		TrackID:     "track123",
		TrackName:   "Test Song",
		ArtistNames: []string{"Zed", "Alpha"},
		AlbumName:   "Test Album",
		AlbumArtURL: "https://i.scdn.co/image/large",
		DurationMs:  200000,
		ProgressMs:  10000,
		IsPlaying:   true,
		ExternalURL: "https://open.spotify.com/track/track123",
	}

	tests := []struct {
		name       string
		np         *stubNowPlaying
		wantStatus int
		wantBody   string
	}{
		{
			name:       "playing",
			np:         &stubNowPlaying{res: &nowplaying.Result{IsPlaying: true, Track: track}},
			wantStatus: http.StatusOK,
			wantBody: `{"isPlaying":true,"track":{"id":"track123","name":"Test Song","artists":["Zed","Alpha"],` +
				`"album":"Test Album","albumArt":"https://i.scdn.co/image/large","duration":200000,"progress":10000,` +
				`"url":"https://open.spotify.com/track/track123"}}`,
		},
		{
			name:       "not playing",
			np:         &stubNowPlaying{res: &nowplaying.Result{}},
			wantStatus: http.StatusOK,
			wantBody:   `{"isPlaying":false,"track":null}`,
		},
		{
			name:       "unknown user",
			np:         &stubNowPlaying{err: store.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"User not found"}`,
		},
		{
			name:       "auth expired",
			np:         &stubNowPlaying{err: fmt.Errorf("%w: invalid_grant", nowplaying.ErrAuthExpired)},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Token expired, re-authentication required"}`,
		},
		{
			name:       "upstream error hides details",
			np:         &stubNowPlaying{err: fmt.Errorf("%w: spotify said 502 <html>", nowplaying.ErrUpstream)},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to fetch now playing"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, &stubFlow{}, tt.np, newTestStore(t)), http.MethodGet, "/api/now-playing/user-1")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %s\nwant %s", got, tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, &stubFlow{}, &stubNowPlaying{res: &nowplaying.Result{}}, newTestStore(t))

	tests := []struct {
		origin string
		want   string
	}{
		{origin: testFrontend, want: testFrontend},
		{origin: "https://evil.example.com", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/now-playing/user-1", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDashboardURL(t *testing.T) {
	got := DashboardURL("https://overlay.example.com", "a b&c")
	want := "https://overlay.example.com/dashboard.html?userId=a+b%26c"
	if got != want {
		t.Errorf("DashboardURL() = %q, want %q", got, want)
	}
}
