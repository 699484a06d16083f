package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrConflict is returned when a Put would give a second user ID to an
// already-registered Spotify account.
var ErrConflict = errors.New("account already registered under another user ID")

// FileStore keeps all records in memory and rewrites a single JSON file on
// every mutation.
type FileStore struct {
	path string

	mu      sync.RWMutex
	records map[string]*Record
}

// OpenFileStore loads the records at path. A missing file yields an empty
// store; an unreadable or corrupt file is an error so that it is never
// silently overwritten.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		records: make(map[string]*Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading store file: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var onDisk map[string]*diskRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parsing store file: %w", err)
	}

	for id, d := range onDisk {
		if d == nil {
			continue
		}
		s.records[id] = d.record(id)
	}

	return s, nil
}

// diskRecord reads both the current file layout and the legacy one, which
// stored the access token under "odersponses" and times as Unix
// milliseconds. Writes always use the current layout.
type diskRecord struct {
	AccountID         string   `json:"spotifyId"`
	AccessToken       string   `json:"accessToken"`
	LegacyAccessToken string   `json:"odersponses"`
	RefreshToken      string   `json:"refreshToken"`
	ExpiresAt         fileTime `json:"tokenExpiry"`
	DisplayName       string   `json:"displayName"`
	AvatarURL         *string  `json:"avatar"`
	CreatedAt         fileTime `json:"createdAt"`
	UpdatedAt         fileTime `json:"updatedAt"`
}

func (d *diskRecord) record(userID string) *Record {
	rec := &Record{
		UserID:       userID,
		AccountID:    d.AccountID,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		ExpiresAt:    time.Time(d.ExpiresAt),
		DisplayName:  d.DisplayName,
		CreatedAt:    time.Time(d.CreatedAt),
		UpdatedAt:    time.Time(d.UpdatedAt),
	}
	if rec.AccessToken == "" {
		rec.AccessToken = d.LegacyAccessToken
	}
	if d.AvatarURL != nil {
		rec.AvatarURL = *d.AvatarURL
	}
	return rec
}

// fileTime accepts an RFC 3339 string, Unix milliseconds or null.
type fileTime time.Time

func (t *fileTime) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*t = fileTime{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var v time.Time
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = fileTime(v)
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("time must be a string or Unix milliseconds: %w", err)
	}
	*t = fileTime(time.UnixMilli(int64(ms)).UTC())
	return nil
}

// Path returns the file path where records are stored.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns a copy of the record for userID.
func (s *FileStore) Get(_ context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

// Put inserts or replaces the record and flushes the file before returning.
// On a failed flush the in-memory map is rolled back.
func (s *FileStore) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("cannot store record without user ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.records {
		if id != rec.UserID && rec.AccountID != "" && other.AccountID == rec.AccountID {
			return ErrConflict
		}
	}

	prev, existed := s.records[rec.UserID]
	s.records[rec.UserID] = clone(rec)

	if err := s.flush(); err != nil {
		if existed {
			s.records[rec.UserID] = prev
		} else {
			delete(s.records, rec.UserID)
		}
		return err
	}
	return nil
}

// Delete removes the record for userID. Deleting an absent user is a no-op
// and does not touch the file.
func (s *FileStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[userID]
	if !ok {
		return nil
	}
	delete(s.records, userID)

	if err := s.flush(); err != nil {
		s.records[userID] = prev
		return err
	}
	return nil
}

// FindByAccountID returns the user ID registered for a Spotify account.
func (s *FileStore) FindByAccountID(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, rec := range s.records {
		if rec.AccountID == accountID {
			return id, nil
		}
	}
	return "", ErrNotFound
}

// Count returns the number of stored records.
func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// flush writes the whole map to a temp file, syncs it and renames it over
// the store file. Caller must hold s.mu.
func (s *FileStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
