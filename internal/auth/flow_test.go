package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/justestif/go-spotify-overlay/internal/store"
)

func newTestFlow(t *testing.T, f *fakeSpotify) (*Flow, store.Store, *clockwork.FakeClock) {
	t.Helper()
	st := newTestStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	flow := NewFlow(f.config(), NewStateStore(DefaultStateTTL, clock), f.api(), st, store.NewLocker(),
		WithFlowClock(clock), WithFlowLogger(quietLogger()))
	return flow, st, clock
}

// beginState runs Begin and returns the state embedded in the URL.
func beginState(t *testing.T, flow *Flow) string {
	t.Helper()
	authURL, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}
	return u.Query().Get("state")
}

func TestFlow_Begin(t *testing.T) {
	f := newFakeSpotify(t)
	flow, _, _ := newTestFlow(t, f)

	authURL, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}
	if u.Path != "/authorize" {
		t.Errorf("path = %q, want /authorize", u.Path)
	}

	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want code", q.Get("response_type"))
	}
	if q.Get("redirect_uri") != "http://127.0.0.1:3000/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	for _, scope := range Scopes {
		if !strings.Contains(q.Get("scope"), scope) {
			t.Errorf("scope %q missing from %q", scope, q.Get("scope"))
		}
	}
	if len(q.Get("state")) != 32 {
		t.Errorf("state = %q, want 32 hex chars", q.Get("state"))
	}
}

func TestFlow_CompleteCreatesRecord(t *testing.T) {
	f := newFakeSpotify(t)
	flow, st, clock := newTestFlow(t, f)
	ctx := context.Background()

	userID, err := flow.Complete(ctx, "code-1", beginState(t, flow))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if userID == "" || userID == "spotify-user" {
		t.Fatalf("Complete() user ID = %q, want opaque ID", userID)
	}

	rec := mustGet(t, st, userID)
	if rec.AccountID != "spotify-user" {
		t.Errorf("AccountID = %q", rec.AccountID)
	}
	if rec.AccessToken != "access-1" || rec.RefreshToken != "refresh-1" {
		t.Errorf("tokens = %q/%q, want access-1/refresh-1", rec.AccessToken, rec.RefreshToken)
	}
	if rec.DisplayName != "Owner spotify-user" || rec.AvatarURL != "https://i.scdn.co/image/spotify-user" {
		t.Errorf("profile fields = %q/%q", rec.DisplayName, rec.AvatarURL)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, clock.Now())
	}
	if grant, _ := f.lastTokenRequest(); grant != "authorization_code" {
		t.Errorf("grant = %q, want authorization_code", grant)
	}
}

func TestFlow_ReauthorizeKeepsUserID(t *testing.T) {
	f := newFakeSpotify(t)
	flow, st, clock := newTestFlow(t, f)
	ctx := context.Background()

	first, err := flow.Complete(ctx, "code-1", beginState(t, flow))
	if err != nil {
		t.Fatalf("first Complete() error = %v", err)
	}
	created := mustGet(t, st, first).CreatedAt

	foundBefore, err := st.FindByAccountID(ctx, "spotify-user")
	if err != nil {
		t.Fatalf("FindByAccountID() error = %v", err)
	}

	clock.Advance(48 * time.Hour)
	second, err := flow.Complete(ctx, "code-2", beginState(t, flow))
	if err != nil {
		t.Fatalf("second Complete() error = %v", err)
	}

	if second != first {
		t.Errorf("re-authorization user ID = %q, want %q", second, first)
	}
	foundAfter, err := st.FindByAccountID(ctx, "spotify-user")
	if err != nil {
		t.Fatalf("FindByAccountID() error = %v", err)
	}
	if foundAfter != foundBefore {
		t.Errorf("FindByAccountID() = %q, want %q", foundAfter, foundBefore)
	}

	if n, _ := st.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	rec := mustGet(t, st, first)
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want preserved %v", rec.CreatedAt, created)
	}
	if !rec.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", rec.UpdatedAt, clock.Now())
	}
	if rec.AccessToken != "access-2" || rec.RefreshToken != "refresh-2" {
		t.Errorf("tokens = %q/%q, want the second grant", rec.AccessToken, rec.RefreshToken)
	}
}

func TestFlow_DistinctAccountsGetDistinctIDs(t *testing.T) {
	f := newFakeSpotify(t)
	flow, st, _ := newTestFlow(t, f)
	ctx := context.Background()

	a, err := flow.Complete(ctx, "code-a", beginState(t, flow))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	f.set(func(f *fakeSpotify) { f.accountID = "someone-else" })
	b, err := flow.Complete(ctx, "code-b", beginState(t, flow))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if a == b {
		t.Errorf("both accounts got user ID %q", a)
	}
	if n, _ := st.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestFlow_CompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fakeSpotify)
		code      string
		badState  bool
		wantErr   error
		wantCode  string
		wantCalls int32
	}{
		{
			name:     "unknown state",
			code:     "code",
			badState: true,
			wantErr:  ErrStateMismatch,
			wantCode: CodeStateMismatch,
		},
		{
			name:     "missing code",
			wantErr:  ErrMissingCode,
			wantCode: CodeExchangeFailed,
		},
		{
			name:      "exchange rejected",
			setup:     func(f *fakeSpotify) { f.tokenStatus = http.StatusBadRequest },
			code:      "code",
			wantErr:   ErrExchangeFailed,
			wantCode:  CodeExchangeFailed,
			wantCalls: 1,
		},
		{
			name:      "profile unavailable",
			setup:     func(f *fakeSpotify) { f.profileStatus = http.StatusInternalServerError },
			code:      "code",
			wantErr:   ErrProfileFailed,
			wantCode:  CodeProfileFailed,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSpotify(t)
			if tt.setup != nil {
				f.set(tt.setup)
			}
			flow, st, _ := newTestFlow(t, f)

			state := beginState(t, flow)
			if tt.badState {
				state = "forged"
			}

			_, err := flow.Complete(context.Background(), tt.code, state)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Complete() error = %v, want %v", err, tt.wantErr)
			}
			if got := ErrorCode(err); got != tt.wantCode {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.wantCode)
			}
			if n := f.tokenCalls.Load(); n != tt.wantCalls {
				t.Errorf("token calls = %d, want %d", n, tt.wantCalls)
			}
			if n, _ := st.Count(context.Background()); n != 0 {
				t.Errorf("Count() = %d, want 0 after failure", n)
			}
		})
	}
}

func TestFlow_ReplayedStateRejected(t *testing.T) {
	f := newFakeSpotify(t)
	flow, _, _ := newTestFlow(t, f)
	ctx := context.Background()

	state := beginState(t, flow)
	if _, err := flow.Complete(ctx, "code-1", state); err != nil {
		t.Fatalf("first Complete() error = %v", err)
	}

	if _, err := flow.Complete(ctx, "code-1", state); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("replayed Complete() error = %v, want ErrStateMismatch", err)
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("token calls = %d, want 1", n)
	}
}

// racingStore registers the account under another user ID right after the
// first lookup misses, as a concurrent callback would.
type racingStore struct {
	store.Store
	raced bool
}

func (s *racingStore) FindByAccountID(ctx context.Context, accountID string) (string, error) {
	if !s.raced {
		s.raced = true
		if err := s.Put(ctx, &store.Record{UserID: "winner", AccountID: accountID}); err != nil {
			return "", err
		}
		return "", store.ErrNotFound
	}
	return s.Store.FindByAccountID(ctx, accountID)
}

func TestFlow_ConflictAdoptsExistingID(t *testing.T) {
	f := newFakeSpotify(t)
	st := &racingStore{Store: newTestStore(t)}
	flow := NewFlow(f.config(), NewStateStore(DefaultStateTTL, nil), f.api(), st, store.NewLocker(),
		WithFlowLogger(quietLogger()))

	userID, err := flow.Complete(context.Background(), "code", beginState(t, flow))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if userID != "winner" {
		t.Errorf("Complete() user ID = %q, want winner", userID)
	}
	if got := mustGet(t, st, "winner").AccessToken; got != "access-1" {
		t.Errorf("AccessToken = %q, want access-1", got)
	}
	if n, _ := st.Count(context.Background()); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}
