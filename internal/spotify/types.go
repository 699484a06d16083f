package spotify

import (
	"github.com/zmb3/spotify/v2"
)

// Profile is the subset of the Spotify user profile stored with a credential.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string // First image, empty if the user has none
}

// Snapshot is one normalized point-in-time view of the playing track.
type Snapshot struct {
	TrackID     string
	TrackName   string
	ArtistNames []string // Spotify order, not sorted
	AlbumName   string
	AlbumArtURL string // First image, empty if none
	DurationMs  int
	ProgressMs  int
	IsPlaying   bool
	ExternalURL string
}

// Playback is the result of a currently-playing query. Track is nil when
// nothing is playing.
type Playback struct {
	IsPlaying bool
	Track     *Snapshot
}

func convertProfile(user *spotify.PrivateUser) *Profile {
	p := &Profile{
		ID:          string(user.ID),
		DisplayName: user.DisplayName,
	}
	if len(user.Images) > 0 {
		p.AvatarURL = user.Images[0].URL
	}
	return p
}

// convertPlayback normalizes Spotify's currently-playing payload. A response
// without an item (204, or an ad/episode) is reported as not playing.
func convertPlayback(cp *spotify.CurrentlyPlaying) *Playback {
	if cp == nil || cp.Item == nil {
		return &Playback{}
	}

	item := cp.Item
	artists := make([]string, len(item.Artists))
	for i, a := range item.Artists {
		artists[i] = a.Name
	}

	snap := &Snapshot{
		TrackID:     item.ID.String(),
		TrackName:   item.Name,
		ArtistNames: artists,
		AlbumName:   item.Album.Name,
		DurationMs:  int(item.Duration),
		ProgressMs:  int(cp.Progress),
		IsPlaying:   cp.Playing,
		ExternalURL: item.ExternalURLs["spotify"],
	}
	if len(item.Album.Images) > 0 {
		snap.AlbumArtURL = item.Album.Images[0].URL
	}
	if snap.ProgressMs > snap.DurationMs {
		snap.ProgressMs = snap.DurationMs
	}

	return &Playback{
		IsPlaying: cp.Playing,
		Track:     snap,
	}
}
