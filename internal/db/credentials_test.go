package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-overlay/internal/store"
)

// openTestStore connects to TEST_DATABASE_URL, skipping when it is unset.
func openTestStore(t *testing.T) store.Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := OpenStore(ctx, url)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testRecord() *store.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &store.Record{
		UserID:       uuid.NewString(),
		AccountID:    "acct-" + uuid.NewString(),
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(time.Hour),
		DisplayName:  "Streamer",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCredentialRepository(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec := testRecord()
	t.Cleanup(func() { st.Delete(context.Background(), rec.UserID) })

	if err := st.Put(ctx, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	updated := *rec
	updated.AccessToken = "rotated"
	updated.CreatedAt = rec.CreatedAt.Add(24 * time.Hour)
	if err := st.Put(ctx, &updated); err != nil {
		t.Fatalf("Put() update error = %v", err)
	}

	got, err := st.Get(ctx, rec.UserID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "rotated" {
		t.Errorf("AccessToken = %q, want rotated", got.AccessToken)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, rec.CreatedAt)
	}

	id, err := st.FindByAccountID(ctx, rec.AccountID)
	if err != nil || id != rec.UserID {
		t.Errorf("FindByAccountID() = %q, %v; want %q", id, err, rec.UserID)
	}

	other := testRecord()
	other.AccountID = rec.AccountID
	if err := st.Put(ctx, other); !errors.Is(err, store.ErrConflict) {
		t.Errorf("Put() duplicate account error = %v, want ErrConflict", err)
	}

	if err := st.Delete(ctx, rec.UserID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := st.Delete(ctx, rec.UserID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, err := st.Get(ctx, rec.UserID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}
