package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up           key.Binding
	Down         key.Binding
	Read         key.Binding
	ReadAll      key.Binding
	DismissToast key.Binding
	Clear        key.Binding
	Confirm      key.Binding
	Cancel       key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Read:         key.NewBinding(key.WithKeys("enter", "r"), key.WithHelp("enter/r", "mark read")),
		ReadAll:      key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "mark all read")),
		DismissToast: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss toast")),
		Clear:        key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "clear log")),
		Confirm:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
		Cancel:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "cancel")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Read, k.ReadAll, k.DismissToast, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Read, k.ReadAll},
		{k.DismissToast, k.Clear},
		{k.Help, k.Quit},
	}
}
