package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit       key.Binding
	Pause      key.Binding
	Top        key.Binding
	Bottom     key.Binding
	PgUp       key.Binding
	PgDown     key.Binding
	Search     key.Binding
	HooksOnly  key.Binding
	ErrorsOnly key.Binding
	Clear      key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup", "b"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown", "f"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	HooksOnly: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "hooks"),
	),
	ErrorsOnly: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "errors"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
}

// keyBarText renders the key hints shown under the viewport.
func keyBarText(searching bool) string {
	if searching {
		return keyStyle.Render("Enter") + keyDescStyle.Render(":apply") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":cancel")
	}
	bindings := []key.Binding{keys.Pause, keys.HooksOnly, keys.ErrorsOnly, keys.Search, keys.Top, keys.Bottom, keys.Clear, keys.Quit}
	var out string
	for i, b := range bindings {
		if i > 0 {
			out += "  "
		}
		out += keyStyle.Render(b.Help().Key) + keyDescStyle.Render(":"+b.Help().Desc)
	}
	return out
}
