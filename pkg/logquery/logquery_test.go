package logquery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)

func entry(offset time.Duration, level logflow.Level, fields ...logflow.Field) logflow.Entry {
	e := logflow.Entry{Timestamp: base.Add(offset), Level: level, Message: string(level)}
	for _, f := range fields {
		f(&e)
	}
	return e
}

func writeLines(t *testing.T, path string, entries ...logflow.Entry) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, e := range entries {
		line, err := e.JSONL()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			t.Fatal(err)
		}
	}
}

func messages(entries []logflow.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestLogFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"2024-05-10.jsonl",
		"2024-05-10.1.jsonl",
		"2024-05-10.2.jsonl",
		"2024-05-10.10.jsonl",
		"2024-05-09.jsonl",
		"2024-04-30.jsonl",
		"notes.jsonl",
		"2024-13-45.jsonl",
		"2024-05-10.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		days int
		want []string
	}{
		{0, []string{"2024-05-10.jsonl", "2024-05-10.10.jsonl", "2024-05-10.2.jsonl", "2024-05-10.1.jsonl"}},
		{1, []string{"2024-05-10.jsonl", "2024-05-10.10.jsonl", "2024-05-10.2.jsonl", "2024-05-10.1.jsonl"}},
		{2, []string{"2024-05-10.jsonl", "2024-05-10.10.jsonl", "2024-05-10.2.jsonl", "2024-05-10.1.jsonl", "2024-05-09.jsonl"}},
		{30, []string{"2024-05-10.jsonl", "2024-05-10.10.jsonl", "2024-05-10.2.jsonl", "2024-05-10.1.jsonl", "2024-05-09.jsonl", "2024-04-30.jsonl"}},
	}
	for _, tt := range tests {
		files, err := LogFiles(dir, tt.days, base)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, f := range files {
			got = append(got, filepath.Base(f))
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("days=%d (-want +got):\n%s", tt.days, diff)
		}
	}
}

func TestLogFiles_MissingDir(t *testing.T) {
	files, err := LogFiles(filepath.Join(t.TempDir(), "absent"), 1, base)
	if err != nil || len(files) != 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}

func TestFilter(t *testing.T) {
	slow := 1500 * time.Millisecond
	fast := 20 * time.Millisecond
	all := []logflow.Entry{
		entry(0, logflow.HookReceived, logflow.Session("s1"), logflow.Hook("PostToolUse")),
		entry(time.Second, logflow.HandlerStart, logflow.Session("s1"), logflow.Handler("lint"), logflow.Hook("PostToolUse")),
		entry(2*time.Second, logflow.ActionError, logflow.Session("s2"), logflow.Handler("lint"), logflow.Err(os.ErrNotExist), logflow.Duration(fast)),
		entry(3*time.Second, logflow.LevelError, logflow.Session("s2")),
		entry(4*time.Second, logflow.ActionResult, logflow.Session("s2"), logflow.Handler("test"), logflow.Duration(slow), logflow.Hook("Stop")),
		entry(5*time.Second, logflow.HookExecuted, logflow.Session("s2"), logflow.Hook("Stop")),
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, messages(all)},
		{"level", Filter{Level: logflow.HandlerStart}, []string{"HANDLER_START"}},
		{"hooks", Filter{HooksOnly: true}, []string{"HOOK_RECEIVED", "HOOK_EXECUTED"}},
		{"errors", Filter{ErrorsOnly: true}, []string{"ACTION_ERROR", "ERROR"}},
		{"slow", Filter{Slow: true}, []string{"ACTION_RESULT"}},
		{"session", Filter{Session: "s1"}, []string{"HOOK_RECEIVED", "HANDLER_START"}},
		{"handler", Filter{Handler: "lint"}, []string{"HANDLER_START", "ACTION_ERROR"}},
		{"event type", Filter{EventType: "Stop"}, []string{"ACTION_RESULT", "HOOK_EXECUTED"}},
		{"window", Filter{Since: base.Add(time.Second), Until: base.Add(3 * time.Second)}, []string{"HANDLER_START", "ACTION_ERROR", "ERROR"}},
		{"combined", Filter{Session: "s2", Handler: "lint", ErrorsOnly: true}, []string{"ACTION_ERROR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range all {
				if tt.filter.Match(e) {
					got = append(got, e.Message)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadEntries_SkipsMalformedAndStopsAtLimit(t *testing.T) {
	dir := t.TempDir()
	newer := filepath.Join(dir, "2024-05-10.jsonl")
	older := filepath.Join(dir, "2024-05-09.jsonl")
	writeLines(t, newer, entry(0, logflow.LevelInfo), entry(time.Second, logflow.LevelWarn))
	f, err := os.OpenFile(newer, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n\n" + `{"timestamp":"2024-05-10T12:00:00Z","level":"BOGUS","message":"x"}` + "\n")
	f.Close()
	writeLines(t, newer, entry(2*time.Second, logflow.LevelError))
	writeLines(t, older, entry(-24*time.Hour, logflow.LevelDebug))

	core, logs := observer.New(zapcore.WarnLevel)
	got, err := ReadEntries([]string{newer, older}, Filter{}, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"INFO", "WARN", "ERROR", "DEBUG"}, messages(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if logs.Len() != 2 {
		t.Errorf("warnings = %d, want 2", logs.Len())
	}

	limited, err := ReadEntries([]string{newer, older}, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit: got %d entries", len(limited))
	}
}

func TestReadEntries_LongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2024-05-10.jsonl")
	writeLines(t, path,
		entry(0, logflow.LevelInfo),
		entry(time.Second, logflow.HookReceived, logflow.With("hook_input", strings.Repeat("x", 2*1024*1024))),
		entry(2*time.Second, logflow.LevelWarn),
	)
	got, err := ReadEntries([]string{path}, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"INFO", "HOOK_RECEIVED", "WARN"}, messages(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadEntries_OversizedLineSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2024-05-10.jsonl")
	writeLines(t, path,
		entry(0, logflow.LevelInfo),
		entry(time.Second, logflow.HookReceived, logflow.With("hook_input", strings.Repeat("x", 200*1024))),
		entry(2*time.Second, logflow.LevelWarn),
	)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"timestamp":"2024-05-10T12:00:03Z","level":"ERROR","message":"no newline"}`)
	f.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	got, err := ReadEntries([]string{path}, Filter{}, WithLogger(zap.New(core)), WithMaxLineSize(64*1024))
	if err != nil {
		t.Fatalf("oversized line aborted the read: %v", err)
	}
	if diff := cmp.Diff([]string{"INFO", "WARN", "no newline"}, messages(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if logs.Len() != 1 || logs.All()[0].ContextMap()["line"] != int64(2) {
		t.Errorf("warnings = %+v", logs.All())
	}
}

func TestSort(t *testing.T) {
	entries := []logflow.Entry{
		entry(2*time.Second, logflow.LevelInfo),
		entry(0, logflow.LevelDebug),
		entry(time.Second, logflow.LevelWarn),
	}
	Sort(entries, false)
	if diff := cmp.Diff([]string{"DEBUG", "WARN", "INFO"}, messages(entries)); diff != "" {
		t.Errorf("ascending (-want +got):\n%s", diff)
	}
	Sort(entries, true)
	if diff := cmp.Diff([]string{"INFO", "WARN", "DEBUG"}, messages(entries)); diff != "" {
		t.Errorf("descending (-want +got):\n%s", diff)
	}
}

// follow starts Follow in the background and returns a channel of received
// messages plus a stop function that waits for it to return.
func follow(t *testing.T, dir string, f Filter, opts ...Option) (<-chan string, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 32)
	done := make(chan error, 1)
	opts = append([]Option{WithPollInterval(10 * time.Millisecond)}, opts...)
	go func() {
		done <- Follow(ctx, dir, f, func(e logflow.Entry) error {
			got <- e.Message
			return nil
		}, opts...)
	}()
	return got, func() error {
		cancel()
		return <-done
	}
}

func expect(t *testing.T, got <-chan string, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case m := <-got:
			if m != w {
				t.Fatalf("got %q, want %q", m, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestFollow_FromStartPartialAndReplace(t *testing.T) {
	dir := t.TempDir()
	path := TodayFile(dir, time.Now())
	writeLines(t, path, entry(0, logflow.LevelInfo))

	got, stop := follow(t, dir, Filter{Level: logflow.LevelWarn}, FromStart())
	writeLines(t, path, entry(time.Second, logflow.LevelWarn, logflow.With("n", 1)))

	line, _ := entry(2*time.Second, logflow.LevelWarn).JSONL()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(line[:10])
	expect(t, got, "WARN")
	time.Sleep(50 * time.Millisecond)
	f.Write(append(line[10:], '\n'))
	f.Close()
	expect(t, got, "WARN")

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	msg := entry(3*time.Second, logflow.LevelWarn)
	msg.Message = "after replace"
	writeLines(t, path, msg)
	expect(t, got, "after replace")

	if err := stop(); err != nil {
		t.Fatal(err)
	}
}

func TestFollow_WaitsForFileAndStartsAtEnd(t *testing.T) {
	dir := t.TempDir()
	path := TodayFile(dir, time.Now())
	got, stop := follow(t, dir, Filter{})

	// The file does not exist yet, so everything written after it appears
	// is delivered.
	first := entry(0, logflow.LevelInfo)
	first.Message = "first"
	writeLines(t, path, first)
	expect(t, got, "first")
	if err := stop(); err != nil {
		t.Fatal(err)
	}

	got, stop = follow(t, dir, Filter{})
	time.Sleep(100 * time.Millisecond)
	second := entry(time.Second, logflow.LevelInfo)
	second.Message = "second"
	writeLines(t, path, second)
	expect(t, got, "second")
	if err := stop(); err != nil {
		t.Fatal(err)
	}
}

func TestFollow_CallbackErrorStops(t *testing.T) {
	dir := t.TempDir()
	path := TodayFile(dir, time.Now())
	writeLines(t, path, entry(0, logflow.LevelInfo))

	sentinel := os.ErrClosed
	err := Follow(context.Background(), dir, Filter{}, func(logflow.Entry) error {
		return sentinel
	}, FromStart(), WithPollInterval(10*time.Millisecond))
	if err != sentinel {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}
