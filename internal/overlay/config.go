// Package overlay implements the viewer side of the now-playing overlay:
// display options read from the overlay URL, the playback interpolator that
// animates progress between polls, and a poller for the server API.
package overlay

import (
	"net/url"
	"strings"
)

// Position is where the overlay card sits on screen.
type Position string

const (
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
)

// Size is the overlay card size.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// URL query parameter names.
const (
	paramUserID     = "userId"
	paramSimplified = "simplified"
	paramLabel      = "label"
	paramAlbum      = "album"
	paramProgress   = "progress"
	paramArtist     = "artist"
	paramLogo       = "logo"
	paramIndicator  = "indicator"
	paramPosition   = "position"
	paramSize       = "size"
)

// DisplayConfig holds the overlay's display options. The zero value is not
// useful; start from DefaultDisplayConfig.
type DisplayConfig struct {
	Label string

	// Simplified renders a single "track • artists" line and overrides
	// every other option.
	Simplified bool

	ShowAlbum     bool
	ShowProgress  bool
	ShowArtist    bool
	ShowLogo      bool
	ShowIndicator bool

	Position Position
	Size     Size
}

// DefaultDisplayConfig shows everything at medium size in the bottom-left
// corner.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		ShowAlbum:     true,
		ShowProgress:  true,
		ShowArtist:    true,
		ShowLogo:      true,
		ShowIndicator: true,
		Position:      PositionBottomLeft,
		Size:          SizeMedium,
	}
}

// ParseDisplayConfig reads options from an overlay URL query. A toggle is
// off only when its value is "0"; unknown positions and sizes fall back to
// the defaults.
func ParseDisplayConfig(q url.Values) DisplayConfig {
	c := DefaultDisplayConfig()

	c.Label = strings.TrimSpace(q.Get(paramLabel))
	c.Simplified = q.Get(paramSimplified) == "1"
	c.ShowAlbum = q.Get(paramAlbum) != "0"
	c.ShowProgress = q.Get(paramProgress) != "0"
	c.ShowArtist = q.Get(paramArtist) != "0"
	c.ShowLogo = q.Get(paramLogo) != "0"
	c.ShowIndicator = q.Get(paramIndicator) != "0"

	switch p := Position(q.Get(paramPosition)); p {
	case PositionBottomLeft, PositionBottomRight, PositionTopLeft, PositionTopRight:
		c.Position = p
	}
	switch s := Size(q.Get(paramSize)); s {
	case SizeSmall, SizeMedium, SizeLarge:
		c.Size = s
	}

	return c
}

// Query encodes the options that differ from the defaults, so a default
// config produces an empty query.
func (c DisplayConfig) Query() url.Values {
	q := url.Values{}
	if c.Simplified {
		q.Set(paramSimplified, "1")
		return q
	}

	if label := strings.TrimSpace(c.Label); label != "" {
		q.Set(paramLabel, label)
	}
	for _, opt := range []struct {
		param string
		shown bool
	}{
		{paramAlbum, c.ShowAlbum},
		{paramProgress, c.ShowProgress},
		{paramArtist, c.ShowArtist},
		{paramLogo, c.ShowLogo},
		{paramIndicator, c.ShowIndicator},
	} {
		if !opt.shown {
			q.Set(opt.param, "0")
		}
	}
	if c.Position != "" && c.Position != PositionBottomLeft {
		q.Set(paramPosition, string(c.Position))
	}
	if c.Size != "" && c.Size != SizeMedium {
		q.Set(paramSize, string(c.Size))
	}

	return q
}

// OverlayURL builds the shareable overlay link for userID under origin.
func OverlayURL(origin, userID string, c DisplayConfig) string {
	q := c.Query()
	q.Set(paramUserID, userID)
	return strings.TrimRight(origin, "/") + "/overlay.html?" + q.Encode()
}
