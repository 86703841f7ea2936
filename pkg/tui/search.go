package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// searchBar is the inline query field under the viewport.
type searchBar struct {
	active  bool
	input   textinput.Model
	query   string
	matches int
}

func newSearchBar() searchBar {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = keyStyle
	return searchBar{input: ti}
}

func (s *searchBar) open() tea.Cmd {
	s.active = true
	s.input.SetValue(s.query)
	return s.input.Focus()
}

// update handles a key while the bar is focused. It reports whether the
// query changed.
func (s *searchBar) update(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		s.active = false
		s.input.Blur()
		changed := s.query != ""
		s.query = ""
		return changed, nil
	case tea.KeyEnter:
		s.active = false
		s.input.Blur()
		return false, nil
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	changed := s.input.Value() != s.query
	s.query = s.input.Value()
	return changed, cmd
}

func (s *searchBar) view() string {
	if !s.active && s.query == "" {
		return ""
	}
	out := keyDescStyle.Render("/" + s.query)
	if s.active {
		out = s.input.View()
	}
	if s.query != "" {
		switch s.matches {
		case 0:
			out += "  " + errorStyle.Render("no matches")
		case 1:
			out += "  " + countStyle.Render("1 match")
		default:
			out += "  " + countStyle.Render(fmt.Sprintf("%d matches", s.matches))
		}
	}
	return out
}

// Highlight marks every case-insensitive occurrence of query in content and
// returns the result with the number of matches.
func Highlight(content, query string) (string, int) {
	if query == "" {
		return content, 0
	}
	lower := strings.ToLower(content)
	needle := strings.ToLower(query)
	count := strings.Count(lower, needle)
	if count == 0 || len(lower) != len(content) {
		return content, count
	}

	var b strings.Builder
	rest := content
	for {
		i := strings.Index(strings.ToLower(rest), needle)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		b.WriteString(highlightStyle.Render(rest[i : i+len(needle)]))
		rest = rest[i+len(needle):]
	}
	return b.String(), count
}
