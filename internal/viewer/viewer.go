// Package viewer draws the now-playing overlay in a terminal. It renders
// overlay.RenderModel frames pushed by an overlay.Player.
package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justestif/go-spotify-overlay/internal/overlay"
)

// fadeFrames is how many frames the card border stays highlighted after a
// track change.
const fadeFrames = 5

// StateMsg carries a new playback state from the Player.
type StateMsg overlay.State

// OwnerMsg carries the overlay owner's display name.
type OwnerMsg string

// Model is the bubbletea model for the overlay viewer.
type Model struct {
	cfg      overlay.DisplayConfig
	state    overlay.State
	owner    string
	fade     int
	width    int
	height   int
	progress progress.Model
	help     help.Model
	keys     keyMap
}

// New creates a Model with the given display options.
func New(cfg overlay.DisplayConfig) Model {
	bar := progress.New(
		progress.WithSolidFill(string(styles.accent)),
		progress.WithoutPercentage(),
	)
	bar.Width = cardWidth(cfg.Size)

	return Model{
		cfg:      cfg,
		state:    overlay.State{Status: overlay.StatusConnecting},
		progress: bar,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.simplified):
			m.cfg.Simplified = !m.cfg.Simplified
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(cardWidth(m.cfg.Size), max(msg.Width-4, 10))

	case StateMsg:
		m.state = overlay.State(msg)
		if m.state.Transition {
			m.fade = fadeFrames
		} else if m.fade > 0 {
			m.fade--
		}

	case OwnerMsg:
		m.owner = string(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	rm := overlay.Render(m.state, m.cfg)

	var body string
	switch {
	case rm.Visible:
		body = m.card(rm)
	case rm.Message != "":
		body = styles.err.Render(rm.Message)
	case m.state.Status == overlay.StatusConnecting:
		body = styles.help.Render("Connecting…")
	}

	footer := m.help.View(m.keys)
	if m.owner != "" {
		footer = styles.help.Render(m.owner) + "  " + footer
	}

	if m.width == 0 || m.height == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, body, footer)
	}

	h, v := placement(rm.Position)
	area := lipgloss.Place(m.width, max(m.height-1, 1), h, v, body)
	return lipgloss.JoinVertical(lipgloss.Left, area, footer)
}

func (m Model) card(rm overlay.RenderModel) string {
	width := cardWidth(rm.Size)
	border := styles.muted
	if m.fade > 0 || rm.FadeIn {
		border = styles.accent
	}
	card := styles.card.BorderForeground(border).Width(width)

	if rm.Simplified {
		return card.Render(styles.title.Render(truncate(rm.SimplifiedText, width)))
	}

	var lines []string
	if rm.Label != "" {
		lines = append(lines, styles.sub.Render(truncate(rm.Label, width)))
	}

	title := rm.TrackName
	if rm.ShowIndicator {
		title = "▶ " + title
	}
	titleStyle := styles.title
	if rm.Paused {
		titleStyle = titleStyle.Foreground(styles.muted)
	}
	lines = append(lines, titleStyle.Render(truncate(title, width)))

	if rm.ShowArtist && rm.Artists != "" {
		lines = append(lines, styles.sub.Render(truncate(rm.Artists, width)))
	}
	if rm.ShowAlbumName {
		lines = append(lines, styles.sub.Render(truncate(rm.Album, width)))
	}
	if rm.ShowProgress {
		lines = append(lines, m.progress.ViewAs(rm.Percent/100))
		lines = append(lines, styles.help.Render(
			fmt.Sprintf("%s / %s", FormatTime(rm.ProgressMs), FormatTime(rm.DurationMs))))
	}
	if rm.ShowLogo {
		lines = append(lines, styles.brand.Render("♫ Spotify"))
	}

	return card.Render(strings.Join(lines, "\n"))
}

// FormatTime renders milliseconds as m:ss.
func FormatTime(ms int) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
