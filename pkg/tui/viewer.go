package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// DefaultMaxEntries bounds the entries kept in memory by the viewer.
const DefaultMaxEntries = 5000

// EntryMsg delivers one followed log entry to the viewer.
type EntryMsg struct {
	Entry logflow.Entry
}

// ErrMsg reports that following stopped with an error.
type ErrMsg struct {
	Err error
}

// Model is the log viewer.
type Model struct {
	source string
	max    int

	colored *logflow.Formatter
	plain   *logflow.Formatter

	entries    []logflow.Entry
	errors     int
	hooksOnly  bool
	errorsOnly bool
	paused     bool
	err        error

	viewport viewport.Model
	search   searchBar
	ready    bool
	width    int
	height   int
}

// Option configures a Model.
type Option func(*Model)

// WithMaxEntries bounds how many entries are retained.
func WithMaxEntries(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithOutput sets the writer whose terminal capabilities drive colors.
func WithOutput(w io.Writer, cfg logflow.ConsoleConfig) Option {
	return func(m *Model) { m.colored = logflow.NewFormatter(w, cfg) }
}

// New creates a viewer for entries coming from source, formatted per cfg.
func New(source string, cfg logflow.ConsoleConfig, opts ...Option) Model {
	plainCfg := cfg
	plainCfg.Colors = false
	m := Model{
		source:  source,
		max:     DefaultMaxEntries,
		colored: logflow.NewFormatter(os.Stdout, cfg),
		plain:   logflow.NewFormatter(io.Discard, plainCfg),
		search:  newSearchBar(),
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case EntryMsg:
		m.append(msg.Entry)
		m.refresh()
		return m, nil

	case ErrMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		if m.search.active {
			changed, cmd := m.search.update(msg)
			if changed {
				m.refresh()
			}
			return m, cmd
		}
		return m.handleKey(msg)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		if !m.paused && m.ready {
			m.viewport.GotoBottom()
		}
	case key.Matches(msg, keys.HooksOnly):
		m.hooksOnly = !m.hooksOnly
		m.refresh()
	case key.Matches(msg, keys.ErrorsOnly):
		m.errorsOnly = !m.errorsOnly
		m.refresh()
	case key.Matches(msg, keys.Clear):
		m.entries, m.errors = nil, 0
		m.refresh()
	case key.Matches(msg, keys.Search):
		return m, m.search.open()
	case key.Matches(msg, keys.Top):
		if m.ready {
			m.paused = true
			m.viewport.GotoTop()
		}
	case key.Matches(msg, keys.Bottom):
		if m.ready {
			m.paused = false
			m.viewport.GotoBottom()
		}
	case key.Matches(msg, keys.PgUp):
		if m.ready {
			m.paused = true
			m.viewport.HalfViewUp()
		}
	case key.Matches(msg, keys.PgDown):
		if m.ready {
			m.viewport.HalfViewDown()
		}
	default:
		if m.ready {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	h := height - 3 // header, search line, key bar
	if h < 1 {
		h = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, h)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = h
	}
	m.refresh()
}

func (m *Model) append(e logflow.Entry) {
	m.entries = append(m.entries, e)
	if isError(e) {
		m.errors++
	}
	if over := len(m.entries) - m.max; over > 0 {
		for _, old := range m.entries[:over] {
			if isError(old) {
				m.errors--
			}
		}
		m.entries = append([]logflow.Entry(nil), m.entries[over:]...)
	}
}

func isError(e logflow.Entry) bool {
	return e.Error != "" || e.Level.Priority() >= logflow.LevelError.Priority()
}

func (m *Model) visible(e logflow.Entry) bool {
	if m.hooksOnly && !e.Level.IsHook() {
		return false
	}
	if m.errorsOnly && !isError(e) {
		return false
	}
	return true
}

// Content renders the entries that pass the active toggles, with search
// matches highlighted.
func (m *Model) Content() string {
	f := m.colored
	if m.search.query != "" {
		f = m.plain
	}
	var b strings.Builder
	for _, e := range m.entries {
		if !m.visible(e) {
			continue
		}
		b.WriteString(f.Format(e))
		b.WriteByte('\n')
	}
	content, matches := Highlight(b.String(), m.search.query)
	m.search.matches = matches
	return content
}

func (m *Model) refresh() {
	content := m.Content()
	if !m.ready {
		return
	}
	m.viewport.SetContent(content)
	if !m.paused {
		m.viewport.GotoBottom()
	}
}

// Entries returns the retained entries, oldest first.
func (m Model) Entries() []logflow.Entry {
	return m.entries
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Waiting for log entries..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.viewport.View(),
		m.search.view(),
		keyBarText(m.search.active),
	)
}

func (m Model) header() string {
	badge := followBadge.Render("FOLLOWING")
	if m.paused {
		badge = pausedBadge.Render("PAUSED")
	}
	var filters []string
	if m.hooksOnly {
		filters = append(filters, "hooks")
	}
	if m.errorsOnly {
		filters = append(filters, "errors")
	}
	right := countStyle.Render(fmt.Sprintf("%d entries, %d errors", len(m.entries), m.errors))
	if len(filters) > 0 {
		right = filterBadge.Render("["+strings.Join(filters, ",")+"]") + " " + right
	}
	if m.err != nil {
		right = errorStyle.Render("follow stopped: "+m.err.Error()) + " " + right
	}

	left := titleStyle.Render("promptctl logs") + " " + badge + " "
	room := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 1
	source := ""
	if room > 3 {
		source = sourceStyle.Render(runewidth.Truncate(m.source, room, "…"))
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(source) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + source + strings.Repeat(" ", gap) + right
}
