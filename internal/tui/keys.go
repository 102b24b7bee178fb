package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	Start   key.Binding
	Finish  key.Binding
	Cancel  key.Binding
	Name    key.Binding
	Buy     key.Binding
	Add     key.Binding
	Edit    key.Binding
	Delete  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		NextTab: key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→/tab", "next tab")),
		PrevTab: key.NewBinding(key.WithKeys("left", "h", "shift+tab"), key.WithHelp("←", "prev tab")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Finish:  key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6"), key.WithHelp("1-6", "finish")),
		Cancel:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		Name:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "name task")),
		Buy:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "buy")),
		Add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		Edit:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Finish, k.Cancel, k.Buy, k.Add, k.NextTab, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Finish, k.Cancel, k.Name},
		{k.Buy, k.Add, k.Edit, k.Delete},
		{k.NextTab, k.PrevTab, k.Help, k.Quit},
	}
}
