package tui

import (
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

var plainCfg = logflow.ConsoleConfig{Enabled: true, Format: logflow.FormatSimple}

func newTestModel(opts ...Option) Model {
	opts = append([]Option{WithOutput(io.Discard, plainCfg)}, opts...)
	m := New("/tmp/logs/2024-05-10.jsonl", plainCfg, opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	return next.(Model)
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func logEntry(level logflow.Level, msg string) EntryMsg {
	return EntryMsg{Entry: logflow.Entry{
		Timestamp: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		Level:     level,
		Message:   msg,
	}}
}

func TestViewer_AppendsAndRenders(t *testing.T) {
	m := send(t, newTestModel(),
		logEntry(logflow.HookReceived, "Hook received"),
		logEntry(logflow.ActionError, "Action failed"),
	)
	view := m.View()
	for _, want := range []string{"Hook received", "Action failed", "2 entries, 1 errors", "FOLLOWING"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewer_Toggles(t *testing.T) {
	m := send(t, newTestModel(),
		logEntry(logflow.HookReceived, "Hook received"),
		logEntry(logflow.HandlerStart, "Handler started"),
		logEntry(logflow.LevelError, "Config broken"),
	)

	m = send(t, m, runes("h"))
	content := m.Content()
	if !strings.Contains(content, "Hook received") || strings.Contains(content, "Handler started") {
		t.Errorf("hooks only:\n%s", content)
	}
	if !strings.Contains(m.View(), "[hooks]") {
		t.Error("filter badge missing")
	}

	m = send(t, m, runes("h"), runes("e"))
	content = m.Content()
	if !strings.Contains(content, "Config broken") || strings.Contains(content, "Hook received") {
		t.Errorf("errors only:\n%s", content)
	}

	m = send(t, m, runes("p"))
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("pause badge missing")
	}

	m = send(t, m, runes("c"))
	if len(m.Entries()) != 0 || !strings.Contains(m.View(), "0 entries, 0 errors") {
		t.Error("clear did not reset entries")
	}
}

func TestViewer_Search(t *testing.T) {
	m := send(t, newTestModel(),
		logEntry(logflow.LevelInfo, "lint passed"),
		logEntry(logflow.LevelInfo, "tests passed"),
		logEntry(logflow.LevelWarn, "slow build"),
	)
	m = send(t, m, runes("/"), runes("passed"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.search.active {
		t.Fatal("search still active after enter")
	}
	if m.search.query != "passed" || m.search.matches != 2 {
		t.Errorf("query %q matches %d", m.search.query, m.search.matches)
	}
	if !strings.Contains(m.View(), "2 matches") {
		t.Errorf("view missing match count:\n%s", m.View())
	}

	m = send(t, m, runes("/"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.search.query != "" {
		t.Error("esc should clear the query")
	}
}

func TestViewer_MaxEntries(t *testing.T) {
	m := newTestModel(WithMaxEntries(2))
	m = send(t, m,
		logEntry(logflow.LevelError, "first"),
		logEntry(logflow.LevelInfo, "second"),
		logEntry(logflow.LevelInfo, "third"),
	)
	if got := len(m.Entries()); got != 2 {
		t.Fatalf("entries = %d", got)
	}
	if m.Entries()[0].Message != "second" || m.errors != 0 {
		t.Errorf("oldest kept = %q, errors = %d", m.Entries()[0].Message, m.errors)
	}
}

func TestViewer_Quit(t *testing.T) {
	for _, k := range []tea.KeyMsg{runes("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := newTestModel().Update(k)
		if cmd == nil {
			t.Fatalf("%s: no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected quit", k)
		}
	}
}

func TestViewer_ErrorShown(t *testing.T) {
	m := send(t, newTestModel(), ErrMsg{Err: io.ErrUnexpectedEOF})
	if !strings.Contains(m.View(), "follow stopped") {
		t.Errorf("view:\n%s", m.View())
	}
}

func TestHighlight(t *testing.T) {
	out, n := Highlight("Error: boom\nerror again", "error")
	if n != 2 {
		t.Errorf("matches = %d", n)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("content lost: %q", out)
	}
	if _, n := Highlight("abc", ""); n != 0 {
		t.Error("empty query should not match")
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := RenderMarkdown("  ", 80); got != "  " {
		t.Errorf("blank input changed: %q", got)
	}
	if got := RenderMarkdown("# Title\n\nbody text", 80); !strings.Contains(got, "body text") {
		t.Errorf("rendered = %q", got)
	}
}
