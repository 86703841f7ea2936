package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/promptctl/pkg/event"
	"github.com/ormasoftchile/promptctl/pkg/hostconfig"
	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, logDir, handlers string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptctl.yaml")
	doc := `version: "1.0"
response: context
logging:
  console:
    enabled: false
  jsonl:
    path: ` + filepath.ToSlash(logDir) + `/{date}.jsonl
handlers:
` + handlers
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const remindHandler = `  remind:
    hook: UserPromptSubmit
    actions:
      - action: prompt
        template: "Keep diffs small."
`

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "promptctl dev") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate(t *testing.T) {
	good := writeConfig(t, t.TempDir(), remindHandler)
	out, _, err := execute(t, "", "validate", good)
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if !strings.Contains(out, "is valid (1 handlers, 1 enabled)") {
		t.Errorf("output = %q", out)
	}

	bad := writeConfig(t, t.TempDir(), `  broken:
    hook: NotAHook
    actions:
      - action: prompt
        template: "x"
`)
	_, errOut, err := execute(t, "", "validate", bad)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(errOut, "Validation failed") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestDispatchThenLogs(t *testing.T) {
	logDir := t.TempDir()
	cfg := writeConfig(t, logDir, remindHandler)

	out, _, err := execute(t, `{"hook_event_name":"UserPromptSubmit","session_id":"s1","prompt":"hi"}`,
		"dispatch", "--config", cfg)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	var resp event.Output
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("response %q: %v", out, err)
	}
	ctx, ok := resp.HookSpecificOutput.(map[string]any)
	if !ok || ctx["additionalContext"] != "Keep diffs small." {
		t.Errorf("hookSpecificOutput = %#v", resp.HookSpecificOutput)
	}

	out, errOut, err := execute(t, "", "logs", "--log-dir", logDir, "--format", "simple", "--hooks", "--no-color")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "HOOK_EXECUTED") {
		t.Errorf("logs output missing hook entry:\n%s", out)
	}
	if strings.Contains(out, "HANDLER_START") {
		t.Errorf("--hooks let a handler entry through:\n%s", out)
	}
	if !strings.Contains(errOut, "entries found") {
		t.Errorf("stderr = %q", errOut)
	}
}

func logMessages(t *testing.T, out string) []string {
	t.Helper()
	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		e, err := logflow.ParseEntry([]byte(line))
		if err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func TestLogs_Reverse(t *testing.T) {
	logDir := t.TempDir()
	store := logflow.NewJSONLStorage(logflow.JSONLConfig{Enabled: true, Path: filepath.Join(logDir, "{date}.jsonl")})
	base := time.Now()
	for i, msg := range []string{"first", "second", "third"} {
		e := logflow.Entry{Timestamp: base.Add(time.Duration(i) * time.Millisecond), Level: logflow.LevelInfo, Message: msg}
		if err := store.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logsReverse, logsTail, logsFormat = false, 0, logflow.FormatRich })

	cases := []struct {
		args []string
		want []string
	}{
		{[]string{"--reverse=false", "--tail", "0"}, []string{"first", "second", "third"}},
		{[]string{"--reverse", "--tail", "0"}, []string{"third", "second", "first"}},
		{[]string{"-r", "--tail", "2"}, []string{"third", "second"}},
		{[]string{"--reverse=false", "--tail", "2"}, []string{"second", "third"}},
	}
	for _, tc := range cases {
		args := append([]string{"logs", "--log-dir", logDir, "--format", "json", "--hooks=false"}, tc.args...)
		out, _, err := execute(t, "", args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if diff := cmp.Diff(tc.want, logMessages(t, out)); diff != "" {
			t.Errorf("%v order (-want +got):\n%s", tc.args, diff)
		}
	}
}

func TestDispatch_MalformedInput(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), remindHandler)
	if _, _, err := execute(t, "{oops", "dispatch", "--config", cfg); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestInstallHooks_Output(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.json")
	if _, _, err := execute(t, "", "install-hooks", "--output", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got hostconfig.Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Hooks) != len(event.KnownEvents()) {
		t.Errorf("registered %d events, want %d", len(got.Hooks), len(event.KnownEvents()))
	}
	if cmd := got.Hooks[event.PreToolUse][0].Hooks[0].Command; cmd != hostconfig.DefaultCommand {
		t.Errorf("command = %q", cmd)
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"30m", now.Add(-30 * time.Minute)},
		{"2024-05-09T08:00:00Z", time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC)},
		{"2024-05-09 08:30:00", time.Date(2024, 5, 9, 8, 30, 0, 0, time.UTC)},
		{"2024-05-09", time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseTime(tc.in, now)
		if err != nil {
			t.Errorf("parseTime(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := parseTime("yesterday", now); err == nil {
		t.Error("expected error for unparseable time")
	}
}
