// Package event defines the hook event payload received from the host and the
// decision object written back to it.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Hook event names emitted by the host.
const (
	PreToolUse       = "PreToolUse"
	PostToolUse      = "PostToolUse"
	UserPromptSubmit = "UserPromptSubmit"
	Notification     = "Notification"
	Stop             = "Stop"
	SubagentStop     = "SubagentStop"
	PreCompact       = "PreCompact"
	SessionStart     = "SessionStart"
	SessionEnd       = "SessionEnd"
)

// KnownEvents lists every hook event the dispatcher is registered for, in
// the order they are written to hooks.json.
func KnownEvents() []string {
	return []string{
		PreToolUse,
		PostToolUse,
		Notification,
		UserPromptSubmit,
		SessionStart,
		SessionEnd,
		Stop,
		SubagentStop,
		PreCompact,
	}
}

// IsKnown reports whether name is one of KnownEvents.
func IsKnown(name string) bool {
	for _, e := range KnownEvents() {
		if e == name {
			return true
		}
	}
	return false
}

// ErrMalformed is returned when the event channel does not carry a JSON object.
var ErrMalformed = errors.New("malformed hook event")

// Payload is the immutable data of one host event. Accessors never mutate the
// underlying map; callers must not either.
type Payload struct {
	data map[string]any
}

// Parse decodes raw event JSON. Numbers are kept as json.Number so templates
// render them exactly as the host sent them.
func Parse(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if data == nil {
		return Payload{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	if name, _ := data["hook_event_name"].(string); name == "" {
		return Payload{}, fmt.Errorf("%w: missing hook_event_name", ErrMalformed)
	}
	return Payload{data: data}, nil
}

// NewPayload wraps an already decoded map.
func NewPayload(data map[string]any) Payload {
	if data == nil {
		data = map[string]any{}
	}
	return Payload{data: data}
}

// Raw returns the underlying map. It is shared, not copied.
func (p Payload) Raw() map[string]any {
	return p.data
}

// Name returns hook_event_name.
func (p Payload) Name() string {
	return p.String("hook_event_name")
}

// SessionID returns session_id, or "unknown" when the host omitted it.
func (p Payload) SessionID() string {
	if s := p.String("session_id"); s != "" {
		return s
	}
	return "unknown"
}

// Cwd returns the working directory reported by the host.
func (p Payload) Cwd() string {
	return p.String("cwd")
}

// ToolName returns tool_name for tool-use events.
func (p Payload) ToolName() string {
	return p.String("tool_name")
}

// ToolInput returns tool_input, or nil when absent or not an object.
func (p Payload) ToolInput() map[string]any {
	m, _ := p.data["tool_input"].(map[string]any)
	return m
}

// FilePath returns tool_input.file_path, the path file_pattern matches against.
func (p Payload) FilePath() string {
	s, _ := p.ToolInput()["file_path"].(string)
	return s
}

// String returns a top-level string field or "".
func (p Payload) String(key string) string {
	s, _ := p.data[key].(string)
	return s
}

// Env is the variable set exposed to handler `when` expressions: the whole
// payload as `event` plus shortcuts for the commonly matched fields.
func (p Payload) Env() map[string]any {
	return map[string]any{
		"event":   p.data,
		"hook":    p.Name(),
		"session": p.SessionID(),
		"cwd":     p.Cwd(),
		"tool":    p.ToolName(),
		"file":    p.FilePath(),
	}
}
