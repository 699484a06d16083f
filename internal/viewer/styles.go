package viewer

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/justestif/go-spotify-overlay/internal/overlay"
)

var styles = newPalette("#1DB954", "#FFFFFF", "#B3B3B3", "#FF5F5F", "#626262")

// palette holds the named styles used by the overlay card.
type palette struct {
	brand   lipgloss.Style
	title   lipgloss.Style
	sub     lipgloss.Style
	err     lipgloss.Style
	help    lipgloss.Style
	card    lipgloss.Style
	accent  lipgloss.Color
	muted   lipgloss.Color
}

func newPalette(brand, title, sub, errFg, help string) *palette {
	return &palette{
		brand:   newStyle(brand).Bold(true),
		title:   newStyle(title).Bold(true),
		sub:     newStyle(sub),
		err:     newStyle(errFg).Bold(true),
		help:    newStyle(help).Italic(true),
		card:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		accent:  lipgloss.Color(brand),
		muted:   lipgloss.Color(help),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

// cardWidth is the inner card width in cells for each overlay size.
func cardWidth(s overlay.Size) int {
	switch s {
	case overlay.SizeSmall:
		return 30
	case overlay.SizeLarge:
		return 60
	default:
		return 44
	}
}

// placement maps an overlay corner to lipgloss positions.
func placement(p overlay.Position) (lipgloss.Position, lipgloss.Position) {
	switch p {
	case overlay.PositionBottomRight:
		return lipgloss.Right, lipgloss.Bottom
	case overlay.PositionTopLeft:
		return lipgloss.Left, lipgloss.Top
	case overlay.PositionTopRight:
		return lipgloss.Right, lipgloss.Top
	default:
		return lipgloss.Left, lipgloss.Bottom
	}
}
