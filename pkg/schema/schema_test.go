package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `
version: "1.0"
handlers:
  zeta-lint:
    hook: PostToolUse
    priority: 5
    match:
      tool: [Edit, Write]
      file_pattern: "*.py"
    actions:
      - action: command
        script: ruff check {tool_input.file_path}
        capture: lint
        timeout: 30s
  alpha-remind:
    hook: UserPromptSubmit
    enabled: false
    actions:
      - action: prompt
        template: "Remember the style guide"
  mid-commit:
    hook: Stop
    actions:
      - action: git
        operation: commit
        message: "wip {session_id}"
logging:
  level: DEBUG
  console:
    enabled: false
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Handlers) != 3 {
		t.Fatalf("handlers = %d, want 3", len(cfg.Handlers))
	}
	lint := cfg.Handlers["zeta-lint"]
	if lint.Name != "zeta-lint" {
		t.Errorf("name = %q", lint.Name)
	}
	if diff := cmp.Diff([]string{"Edit", "Write"}, lint.Match.Tools()); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
	if d, _ := lint.Actions[0].TimeoutDuration(); d.Seconds() != 30 {
		t.Errorf("timeout = %v", d)
	}
	if cfg.Handlers["alpha-remind"].IsEnabled() {
		t.Error("alpha-remind should be disabled")
	}
	if !cfg.Handlers["mid-commit"].IsEnabled() {
		t.Error("enabled should default to true")
	}
}

func TestLoad_PreservesHandlerOrder(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"zeta-lint", "alpha-remind", "mid-commit"}
	if diff := cmp.Diff(want, cfg.HandlerOrder); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	var got []string
	for _, h := range cfg.OrderedHandlers() {
		got = append(got, h.Name)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OrderedHandlers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_LoggingDefaultsMerged(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Logging.Console.Enabled {
		t.Error("console should be disabled")
	}
	if cfg.Logging.BufferSize != 10000 {
		t.Errorf("buffer_size = %d, want default 10000", cfg.Logging.BufferSize)
	}
	if !cfg.Logging.JSONL.Enabled {
		t.Error("jsonl should keep its default enabled=true")
	}
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Handlers) != 0 || cfg.Version != CurrentVersion || cfg.Logging == nil {
		t.Errorf("unexpected empty config: %+v", cfg)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(strings.NewReader("handlers:\n  x:\n    hook: Stop\n    bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "structural decode") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_JSONDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(`{"handlers":{"b":{"hook":"Stop"},"a":{"hook":"Stop"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, cfg.HandlerOrder); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderedHandlers_CodeBuilt(t *testing.T) {
	cfg := Empty()
	cfg.Handlers = map[string]*Handler{"b": {Name: "b"}, "a": {Name: "a"}}
	cfg.AddHandler("c", &Handler{Hook: "Stop"})
	var got []string
	for _, h := range cfg.OrderedHandlers() {
		got = append(got, h.Name)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_SampleIsClean(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if errs := Validate(cfg); HasErrors(errs) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidate_UnknownActionAndHook(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
handlers:
  bad:
    hook: OnSave
    actions:
      - action: teleport
`))
	if err != nil {
		t.Fatal(err)
	}
	errs := Validate(cfg)
	var semantic, hook, action bool
	for _, e := range errs {
		switch {
		case e.Phase == "semantic":
			semantic = true
		case strings.Contains(e.Message, `unknown hook "OnSave"`):
			hook = true
		case strings.Contains(e.Message, `unknown action type "teleport"`):
			action = true
		}
	}
	if !semantic || !hook || !action {
		t.Errorf("semantic=%v hook=%v action=%v; errs: %v", semantic, hook, action, errs)
	}
}

func TestValidateAction_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{"prompt", Action{Action: ActionPrompt}, "template"},
		{"command", Action{Action: ActionCommand}, "script"},
		{"git stage", Action{Action: ActionGit, Operation: GitStage}, "files"},
		{"git op", Action{Action: ActionGit, Operation: "push"}, "operation"},
		{"check", Action{Action: ActionValidate, Checks: []Check{{Type: "port_open"}}}, "checks[0].type"},
		{"nested", Action{Action: ActionConditional, Condition: "a == a", Then: []Action{{Action: ActionCommand}}}, "then[0].script"},
		{"timeout", Action{Action: ActionPrompt, Template: "x", Timeout: "soon"}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateAction("a", tt.action)
			if len(errs) != 1 {
				t.Fatalf("errs = %v, want exactly one", errs)
			}
			if !strings.HasSuffix(errs[0].Path, tt.want) {
				t.Errorf("path = %q, want suffix %q", errs[0].Path, tt.want)
			}
		})
	}
}

func TestValidate_MatchRules(t *testing.T) {
	cfg := Empty()
	cfg.AddHandler("m", &Handler{
		Hook:    "PostToolUse",
		Match:   &Match{Tool: 42, FilePattern: "[a-", When: "tool =="},
		Actions: []Action{{Action: ActionPrompt, Template: "x"}},
	})
	errs := ValidateDomain(cfg)
	paths := map[string]bool{}
	for _, e := range errs {
		paths[e.Path] = true
	}
	for _, want := range []string{"handlers.m.match.tool", "handlers.m.match.file_pattern", "handlers.m.match.when"} {
		if !paths[want] {
			t.Errorf("missing error at %s; got %v", want, errs)
		}
	}
}

func TestValidateFile_Structural(t *testing.T) {
	p := filepath.Join(t.TempDir(), "promptctl.yaml")
	if err := os.WriteFile(p, []byte("handlers: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, errs := ValidateFile(p)
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Errorf("errs = %v", errs)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$id"] != SchemaID {
		t.Errorf("$id = %v", doc["$id"])
	}
	if !strings.Contains(string(data), `"conditional"`) {
		t.Error("schema should enumerate action types")
	}
}

func TestDiscover_EnvOverride(t *testing.T) {
	t.Setenv(ConfigEnvVar, "/some/where.yaml")
	if got := Discover(); got != "/some/where.yaml" {
		t.Errorf("Discover = %q", got)
	}
}

func TestLoadDiscovered_Missing(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	cfg, p, err := LoadDiscovered()
	if err != nil {
		t.Fatal(err)
	}
	if p != "" || len(cfg.Handlers) != 0 {
		t.Errorf("path=%q handlers=%d", p, len(cfg.Handlers))
	}
}
