package eval

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ormasoftchile/promptctl/pkg/event"
)

func newCtx(t *testing.T, raw string, opts ...Option) *Context {
	t.Helper()
	p, err := event.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return New(p, opts...)
}

const editEvent = `{"hook_event_name":"PostToolUse","session_id":"s1","tool_name":"Edit","tool_input":{"file_path":"a.py","lines":3,"tags":["x","y"]}}`

func TestGet_DotPath(t *testing.T) {
	c := newCtx(t, editEvent)
	if got := c.Get("tool_input.file_path", ""); got != "a.py" {
		t.Errorf("got %v", got)
	}
	if got := c.Get("tool_input.missing", "def"); got != "def" {
		t.Errorf("missing leaf = %v, want def", got)
	}
	if got := c.Get("tool_name.deeper", "def"); got != "def" {
		t.Errorf("non-mapping intermediate = %v, want def", got)
	}
}

func TestRender_Literal(t *testing.T) {
	c := newCtx(t, editEvent)
	if got := c.Render("hello world"); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestRender_PayloadAndState(t *testing.T) {
	c := newCtx(t, editEvent)
	c.SetState("out", "ok")
	got := c.Render("{tool_name} {tool_input.file_path}: {state.out}")
	if got != "Edit a.py: ok" {
		t.Errorf("got %q", got)
	}
}

func TestRender_ValueFormatting(t *testing.T) {
	c := newCtx(t, editEvent)
	if got := c.Render("{tool_input.lines}"); got != "3" {
		t.Errorf("number = %q", got)
	}
	if got := c.Render("{tool_input.tags}"); got != `["x","y"]` {
		t.Errorf("list = %q", got)
	}
}

func TestRender_UnknownLeftIntact(t *testing.T) {
	c := newCtx(t, editEvent)
	tmpl := "x {nope} {state.nope} ${HOME} {a b}"
	if got := c.Render(tmpl); got != tmpl {
		t.Errorf("got %q", got)
	}
}

func TestRender_StateNamespaceIsolated(t *testing.T) {
	c := newCtx(t, `{"hook_event_name":"Stop","state":{"out":"payload"}}`)
	c.SetState("out", "state")
	if got := c.Render("{state.out}"); got != "state" {
		t.Errorf("got %q, want state map value", got)
	}
}

func TestRender_Idempotent(t *testing.T) {
	c := newCtx(t, editEvent)
	c.SetState("n", 2)
	for _, tmpl := range []string{
		"{tool_name} did {state.n} {unknown}",
		"{{tool_name}}",
		"{unterminated",
		"",
	} {
		once := c.Render(tmpl)
		if twice := c.Render(once); twice != once {
			t.Errorf("Render(%q): once %q, twice %q", tmpl, once, twice)
		}
	}
}

func TestRender_NestedBraces(t *testing.T) {
	c := newCtx(t, editEvent)
	if got := c.Render("{{tool_name}}"); got != "{Edit}" {
		t.Errorf("got %q", got)
	}
}

func TestStrict_Unresolved(t *testing.T) {
	c := newCtx(t, editEvent, WithRenderer(Strict{}))
	_, err := c.RenderE("run {tool_name} {state.missing}")
	var ue *UnresolvedError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnresolvedError", err)
	}
	if len(ue.Missing) != 1 || ue.Missing[0] != "state.missing" {
		t.Errorf("missing = %v", ue.Missing)
	}

	out, err := c.RenderE("echo ${HOME} {tool_name}")
	if err != nil {
		t.Fatalf("shell variables should not count as placeholders: %v", err)
	}
	if out != "echo ${HOME} Edit" {
		t.Errorf("got %q", out)
	}
}

func TestStateChangeCallback(t *testing.T) {
	var seen []string
	c := newCtx(t, editEvent, OnStateChange(func(k string, _ any) { seen = append(seen, k) }))
	c.SetState("a", 1)
	c.SetState("b", json.Number("2"))
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("seen = %v", seen)
	}
	if c.GetState("b", nil) != json.Number("2") {
		t.Errorf("GetState(b) = %v", c.GetState("b", nil))
	}
	st := c.State()
	st["a"] = "mutated"
	if c.GetState("a", nil) != 1 {
		t.Error("State() must return a copy")
	}
}

func TestRendererFor(t *testing.T) {
	if _, err := RendererFor("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
	r, err := RendererFor("strict")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(Strict); !ok {
		t.Errorf("got %T", r)
	}
}
