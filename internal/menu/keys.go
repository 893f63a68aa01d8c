package menu

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the boot menu key bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Select    key.Binding
	Shutdown  key.Binding
	Interrupt key.Binding
}

// DefaultKeyMap is the built-in key binding set. Digits type a selection
// key directly and are handled outside the map.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "boot"),
	),
	Shutdown: key.NewBinding(
		key.WithKeys("q", "esc"),
		key.WithHelp("q", "shutdown"),
	),
	Interrupt: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "interrupt"),
	),
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Shutdown}
}
