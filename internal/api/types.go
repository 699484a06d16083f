// Package api defines the JSON bodies exchanged between the server and
// overlay clients.
package api

// Track is the public view of the playing track.
type Track struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Album    string   `json:"album"`
	AlbumArt string   `json:"albumArt,omitempty"`
	Duration int      `json:"duration"`
	Progress int      `json:"progress"`
	URL      string   `json:"url,omitempty"`
}

// NowPlaying is the body of GET /api/now-playing/{userId}. Track is null
// when nothing is playing.
type NowPlaying struct {
	IsPlaying bool   `json:"isPlaying"`
	Track     *Track `json:"track"`
}

// User is the body of GET /api/user/{userId}. CreatedAt is in Unix
// milliseconds.
type User struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	Avatar      *string `json:"avatar"`
	CreatedAt   int64   `json:"createdAt"`
}

// Health is the body of GET /health.
type Health struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
}

// Success is the body of DELETE /api/user/{userId}.
type Success struct {
	Success bool `json:"success"`
}

// Error is the body of every non-2xx JSON response.
type Error struct {
	Error string `json:"error"`
}
