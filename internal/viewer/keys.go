package viewer

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the viewer's key bindings.
type keyMap struct {
	simplified key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		simplified: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "simplified")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.simplified, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
