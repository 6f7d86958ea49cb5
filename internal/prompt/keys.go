package prompt

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Keep    key.Binding
	Replace key.Binding
	Reject  key.Binding
	Always  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+k"),
		key.WithHelp("up/C-k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+j", "tab"),
		key.WithHelp("dn/C-j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Keep: key.NewBinding(
		key.WithKeys("k"),
		key.WithHelp("k", "keep"),
	),
	Replace: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "replace"),
	),
	Reject: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "reject"),
	),
	Always: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "same for the rest"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "reject"),
	),
}
