package watch

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the viewer's keyboard bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Reconnect key.Binding
	Clear     key.Binding
	Quit      key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "older"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "newer"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Reconnect, k.Clear, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return "  " + strings.Join(parts, "  ")
}

