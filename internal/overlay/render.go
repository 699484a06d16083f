package overlay

import "strings"

// RenderModel is everything a UI layer needs to draw one overlay frame.
type RenderModel struct {
	// Visible reports whether the track card is drawn. When false, Message
	// (if any) is drawn instead.
	Visible bool
	Message string

	Position Position
	Size     Size

	Label     string
	TrackName string
	Artists   string
	Album     string
	AlbumArt  string

	// SimplifiedText is the single line drawn in simplified mode.
	Simplified     bool
	SimplifiedText string

	// The album toggle covers both; each is set only when there is
	// something to draw.
	ShowAlbumArt  bool
	ShowAlbumName bool
	ShowProgress  bool
	ShowArtist    bool
	ShowLogo      bool
	ShowIndicator bool

	Paused     bool
	ProgressMs int
	DurationMs int
	Percent    float64 // 0 to 100

	// FadeIn asks the UI to animate the card in for a new track.
	FadeIn bool
}

// Render maps playback state and display options to a RenderModel. It has
// no side effects and is safe to call from any UI loop.
func Render(s State, c DisplayConfig) RenderModel {
	m := RenderModel{
		Position: c.Position,
		Size:     c.Size,
	}
	if m.Position == "" {
		m.Position = PositionBottomLeft
	}
	if m.Size == "" {
		m.Size = SizeMedium
	}

	if s.Status != StatusShowing || s.Track == nil {
		m.Message = s.Message
		return m
	}

	t := s.Track
	artists := strings.Join(t.Artists, ", ")

	m.Visible = true
	m.TrackName = t.Name
	m.Artists = artists
	m.Album = t.Album
	m.AlbumArt = t.AlbumArt
	m.Paused = !s.IsPlaying
	m.ProgressMs = s.DisplayedProgressMs
	m.DurationMs = s.DurationMs
	if s.DurationMs > 0 {
		m.Percent = float64(s.DisplayedProgressMs) / float64(s.DurationMs) * 100
	}
	m.FadeIn = s.Transition

	if c.Simplified {
		m.Simplified = true
		m.SimplifiedText = t.Name
		if artists != "" {
			m.SimplifiedText += " • " + artists
		}
		m.ShowArtist = true
		return m
	}

	m.Label = c.Label
	m.ShowAlbumArt = c.ShowAlbum && t.AlbumArt != ""
	m.ShowAlbumName = c.ShowAlbum && t.Album != ""
	m.ShowProgress = c.ShowProgress
	m.ShowArtist = c.ShowArtist
	m.ShowLogo = c.ShowLogo
	m.ShowIndicator = c.ShowIndicator && s.IsPlaying

	return m
}
