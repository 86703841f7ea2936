// Package logflow is the hook activity logging pipeline. Callers enqueue
// structured entries without blocking; a background goroutine drains them to
// a console renderer and a rotated JSONL store.
package logflow

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Level is a semantic log level. General levels sit beside lifecycle levels
// that mark each stage of event handling.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"

	HookReceived Level = "HOOK_RECEIVED"
	HookMatched  Level = "HOOK_MATCHED"
	HookExecuted Level = "HOOK_EXECUTED"
	HookSkipped  Level = "HOOK_SKIPPED"

	HandlerStart    Level = "HANDLER_START"
	HandlerComplete Level = "HANDLER_COMPLETE"
	HandlerError    Level = "HANDLER_ERROR"

	ActionStart  Level = "ACTION_START"
	ActionResult Level = "ACTION_RESULT"
	ActionError  Level = "ACTION_ERROR"

	ContextRender Level = "CONTEXT_RENDER"
	StateChange   Level = "STATE_CHANGE"

	Performance   Level = "PERFORMANCE"
	SlowOperation Level = "SLOW_OPERATION"
)

var priorities = map[Level]int{
	LevelDebug:      10,
	LevelInfo:       20,
	LevelWarn:       30,
	LevelError:      40,
	HookReceived:    15,
	HookMatched:     20,
	HookExecuted:    20,
	HookSkipped:     15,
	HandlerStart:    20,
	HandlerComplete: 20,
	HandlerError:    40,
	ActionStart:     20,
	ActionResult:    20,
	ActionError:     40,
	ContextRender:   10,
	StateChange:     15,
	Performance:     20,
	SlowOperation:   30,
}

// Levels returns every level in declaration order.
func Levels() []Level {
	return []Level{
		LevelDebug, LevelInfo, LevelWarn, LevelError,
		HookReceived, HookMatched, HookExecuted, HookSkipped,
		HandlerStart, HandlerComplete, HandlerError,
		ActionStart, ActionResult, ActionError,
		ContextRender, StateChange,
		Performance, SlowOperation,
	}
}

// Priority returns the filtering priority. Unknown levels rank 0.
func (l Level) Priority() int {
	return priorities[l]
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := priorities[l]
	return ok
}

// IsHook reports whether l belongs to the hook lifecycle group.
func (l Level) IsHook() bool {
	return strings.HasPrefix(string(l), "HOOK")
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// JSONSchema enumerates the level names in the generated config schema.
func (Level) JSONSchema() *jsonschema.Schema {
	enum := make([]any, 0, len(priorities))
	for _, l := range Levels() {
		enum = append(enum, string(l))
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}
