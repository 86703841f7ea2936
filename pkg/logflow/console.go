package logflow

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// ANSI palette indexes per level.
var levelColors = map[Level]string{
	LevelDebug:      "6",
	LevelInfo:       "2",
	LevelWarn:       "3",
	LevelError:      "1",
	HookReceived:    "4",
	HookMatched:     "5",
	HookExecuted:    "2",
	HookSkipped:     "8",
	HandlerStart:    "6",
	HandlerComplete: "2",
	HandlerError:    "1",
	ActionStart:     "6",
	ActionResult:    "2",
	ActionError:     "1",
	ContextRender:   "8",
	StateChange:     "5",
	Performance:     "3",
	SlowOperation:   "3",
}

var levelIcons = map[Level]string{
	LevelDebug:      "🔍",
	LevelInfo:       "ℹ",
	LevelWarn:       "⚠",
	LevelError:      "❌",
	HookReceived:    "📨",
	HookMatched:     "🎯",
	HookExecuted:    "✅",
	HookSkipped:     "⏭",
	HandlerStart:    "🚀",
	HandlerComplete: "✨",
	HandlerError:    "💥",
	ActionStart:     "▶",
	ActionResult:    "✓",
	ActionError:     "✗",
	ContextRender:   "🔄",
	StateChange:     "📝",
	Performance:     "⚡",
	SlowOperation:   "🐌",
}

// Icon returns the level's console icon.
func (l Level) Icon() string {
	return levelIcons[l]
}

// Color returns the level's ANSI palette index.
func (l Level) Color() string {
	return levelColors[l]
}

const detailIndent = "               "

// Formatter renders entries for humans.
type Formatter struct {
	cfg   ConsoleConfig
	r     *lipgloss.Renderer
	gray  lipgloss.Style
	level map[Level]lipgloss.Style
}

// NewFormatter builds a formatter writing styles for w. With colors disabled
// every style renders as plain text.
func NewFormatter(w io.Writer, cfg ConsoleConfig) *Formatter {
	r := lipgloss.NewRenderer(w)
	if cfg.Colors {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	f := &Formatter{
		cfg:   cfg,
		r:     r,
		gray:  r.NewStyle().Foreground(lipgloss.Color("8")),
		level: make(map[Level]lipgloss.Style, len(levelColors)),
	}
	for l, c := range levelColors {
		f.level[l] = r.NewStyle().Foreground(lipgloss.Color(c))
	}
	return f
}

// Format renders e according to the configured format.
func (f *Formatter) Format(e Entry) string {
	switch f.cfg.Format {
	case FormatJSON:
		data, err := e.JSONL()
		if err != nil {
			return fmt.Sprintf("%s %s (unencodable: %v)", e.Level, e.Message, err)
		}
		return string(data)
	case FormatSimple:
		return f.simple(e)
	default:
		return f.rich(e)
	}
}

func (f *Formatter) rich(e Entry) string {
	var lines []string

	icon := runewidth.FillRight(e.Level.Icon(), 2)
	var main strings.Builder
	main.WriteString(f.gray.Render("[" + e.Timestamp.Format("15:04:05.000") + "]"))
	main.WriteString(" ")
	main.WriteString(f.level[e.Level].Render(icon + " " + string(e.Level)))
	if e.HookName != "" {
		main.WriteString(" " + e.HookName)
	}
	if e.HandlerName != "" {
		main.WriteString(" → " + e.HandlerName)
	}
	main.WriteString(" " + e.Message)
	lines = append(lines, main.String())

	var meta []string
	if e.SessionID != "" {
		meta = append(meta, "Session: "+shortID(e.SessionID)+"...")
	}
	if e.ActionType != "" {
		meta = append(meta, "Action: "+e.ActionType)
	}
	if e.DurationMS != nil {
		meta = append(meta, fmt.Sprintf("Duration: %.2fms", *e.DurationMS))
	}
	if len(meta) > 0 {
		lines = append(lines, f.gray.Render(detailIndent+strings.Join(meta, " | ")))
	}

	if f.cfg.ShowData && len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if (k == "hook_input" && !f.cfg.ShowInput) || (k == "hook_output" && !f.cfg.ShowOutput) {
				continue
			}
			lines = append(lines, f.gray.Render(detailIndent+"├─ "+k+": "+compact(e.Data[k])))
		}
	}
	if f.cfg.ShowInput {
		lines = append(lines, f.block("Hook Input", e.Data["hook_input"])...)
	}
	if f.cfg.ShowOutput {
		lines = append(lines, f.block("Hook Output", e.Data["hook_output"])...)
	}

	if e.Error != "" {
		lines = append(lines, f.gray.Render(detailIndent+"└─ Error: "+e.Error))
	}
	if e.Traceback != "" && f.cfg.ShowData {
		for _, l := range strings.Split(strings.TrimRight(e.Traceback, "\n"), "\n") {
			lines = append(lines, f.gray.Render(detailIndent+"   "+l))
		}
	}
	return strings.Join(lines, "\n")
}

// block renders an indented JSON document under a title.
func (f *Formatter) block(title string, v any) []string {
	if v == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil
	}
	lines := []string{f.gray.Render(detailIndent + "├─ " + title + ":")}
	for _, l := range strings.Split(string(data), "\n") {
		lines = append(lines, f.gray.Render(detailIndent+"│  "+l))
	}
	return lines
}

func (f *Formatter) simple(e Entry) string {
	parts := []string{e.Timestamp.Format("15:04:05"), runewidth.FillRight(string(e.Level), 16)}
	if e.HandlerName != "" {
		parts = append(parts, e.HandlerName)
	}
	parts = append(parts, e.Message)
	line := strings.Join(parts, " ")
	if e.Error != "" {
		line += " | Error: " + e.Error
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func compact(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// ConsoleSink writes formatted entries, one per line.
type ConsoleSink struct {
	mu        sync.Mutex
	w         io.Writer
	formatter *Formatter
}

// NewConsoleSink creates a sink rendering to w.
func NewConsoleSink(w io.Writer, cfg ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{w: w, formatter: NewFormatter(w, cfg)}
}

// Write implements Sink.
func (s *ConsoleSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, s.formatter.Format(e))
	return err
}

// Close implements Sink. The writer is owned by the caller.
func (s *ConsoleSink) Close() error {
	return nil
}
