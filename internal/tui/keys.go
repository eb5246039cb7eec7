package tui

import "github.com/charmbracelet/bubbles/key"

// listKeyMap defines key bindings for the line list
type listKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Package  key.Binding
	Search   key.Binding
	Manual   key.Binding
	Actions  key.Binding
	Info     key.Binding
	Validate key.Binding
	Refresh  key.Binding
	Clear    key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k listKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Manual, k.Actions, k.Validate, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k listKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Package},
		{k.Search, k.Clear, k.Manual},
		{k.Actions, k.Info, k.Validate, k.Refresh, k.Quit},
	}
}

// menuKeyMap defines key bindings for the actions menu
type menuKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k menuKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k menuKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Select, k.Back}}
}

// formKeyMap defines key bindings for the product and information forms
type formKeyMap struct {
	Next    key.Binding
	Save    key.Binding
	Delete  key.Binding
	Discard key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k formKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Save, k.Delete, k.Discard}
}

// FullHelp returns keybindings for the expanded help view
func (k formKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Save, k.Delete, k.Discard}}
}

// inputKeyMap defines key bindings while a text field has focus
type inputKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k inputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k inputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

// confirmKeyMap defines key bindings for action confirmation dialogs
type confirmKeyMap struct {
	Yes key.Binding
	No  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k confirmKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Yes, k.No}
}

// FullHelp returns keybindings for the expanded help view
func (k confirmKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Yes, k.No}}
}

type keyMaps struct {
	list    listKeyMap
	menu    menuKeyMap
	form    formKeyMap
	input   inputKeyMap
	confirm confirmKeyMap
}

func newKeyMaps() keyMaps {
	return keyMaps{
		list: listKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up"),
				key.WithHelp("↑", "previous line"),
			),
			Down: key.NewBinding(
				key.WithKeys("down"),
				key.WithHelp("↓", "next line"),
			),
			Open: key.NewBinding(
				key.WithKeys("o"),
				key.WithHelp("o", "open line"),
			),
			Package: key.NewBinding(
				key.WithKeys("p"),
				key.WithHelp("p", "open package"),
			),
			Search: key.NewBinding(
				key.WithKeys("/"),
				key.WithHelp("/", "search"),
			),
			Manual: key.NewBinding(
				key.WithKeys("m"),
				key.WithHelp("m", "type barcode"),
			),
			Actions: key.NewBinding(
				key.WithKeys("a"),
				key.WithHelp("a", "actions"),
			),
			Info: key.NewBinding(
				key.WithKeys("i"),
				key.WithHelp("i", "information"),
			),
			Validate: key.NewBinding(
				key.WithKeys("v"),
				key.WithHelp("v", "validate"),
			),
			Refresh: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "refresh"),
			),
			Clear: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "clear search"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q"),
				key.WithHelp("q", "leave"),
			),
		},
		menu: menuKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Select: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "select"),
			),
			Back: key.NewBinding(
				key.WithKeys("esc", "q"),
				key.WithHelp("esc", "back"),
			),
		},
		form: formKeyMap{
			Next: key.NewBinding(
				key.WithKeys("tab"),
				key.WithHelp("tab", "next field"),
			),
			Save: key.NewBinding(
				key.WithKeys("ctrl+s"),
				key.WithHelp("ctrl+s", "save"),
			),
			Delete: key.NewBinding(
				key.WithKeys("ctrl+d"),
				key.WithHelp("ctrl+d", "delete line"),
			),
			Discard: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "discard"),
			),
		},
		input: inputKeyMap{
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "confirm"),
			),
			Cancel: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "cancel"),
			),
		},
		confirm: confirmKeyMap{
			Yes: key.NewBinding(
				key.WithKeys("y"),
				key.WithHelp("y", "confirm"),
			),
			No: key.NewBinding(
				key.WithKeys("n", "esc"),
				key.WithHelp("n", "decline"),
			),
		},
	}
}
