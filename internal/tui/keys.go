package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Propose key.Binding
	Peek    key.Binding
	Topic   key.Binding
	Again   key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Propose, k.Peek, k.Topic, k.Again, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous player"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next player"),
	),
	Propose: key.NewBinding(
		key.WithKeys("enter", "p"),
		key.WithHelp("enter", "propose"),
	),
	Peek: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "peek hand"),
	),
	Topic: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "new topic"),
	),
	Again: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "play again"),
		key.WithDisabled(),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}
