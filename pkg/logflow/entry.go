package logflow

import (
	"encoding/json"
	"time"
)

// Entry is one structured log record. Entries are never mutated once they
// are enqueued.
type Entry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	SessionID   string         `json:"session_id,omitempty"`
	HookName    string         `json:"hook_name,omitempty"`
	HandlerName string         `json:"handler_name,omitempty"`
	ActionType  string         `json:"action_type,omitempty"`
	Data        map[string]any `json:"data"`
	DurationMS  *float64       `json:"duration_ms,omitempty"`
	Error       string         `json:"error,omitempty"`
	Traceback   string         `json:"traceback,omitempty"`
}

// JSONL encodes the entry as a single line without the trailing newline.
func (e Entry) JSONL() ([]byte, error) {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return json.Marshal(e)
}

// ParseEntry decodes one JSONL line.
func ParseEntry(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Duration returns duration_ms as a time.Duration, or 0 when absent.
func (e Entry) Duration() time.Duration {
	if e.DurationMS == nil {
		return 0
	}
	return time.Duration(*e.DurationMS * float64(time.Millisecond))
}

// Field sets optional entry attributes.
type Field func(*Entry)

// Session sets the session identifier.
func Session(id string) Field {
	return func(e *Entry) { e.SessionID = id }
}

// Hook sets the hook event name.
func Hook(name string) Field {
	return func(e *Entry) { e.HookName = name }
}

// Handler sets the handler name.
func Handler(name string) Field {
	return func(e *Entry) { e.HandlerName = name }
}

// Action sets the action type.
func Action(kind string) Field {
	return func(e *Entry) { e.ActionType = kind }
}

// Data merges values into the entry's data map.
func Data(m map[string]any) Field {
	return func(e *Entry) {
		if len(m) == 0 {
			return
		}
		if e.Data == nil {
			e.Data = make(map[string]any, len(m))
		}
		for k, v := range m {
			e.Data[k] = v
		}
	}
}

// With sets a single data value.
func With(key string, value any) Field {
	return Data(map[string]any{key: value})
}

// Duration records an elapsed time in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *Entry) {
		ms := float64(d) / float64(time.Millisecond)
		e.DurationMS = &ms
	}
}

// Err records an error message. A nil error is ignored.
func Err(err error) Field {
	return func(e *Entry) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// Traceback records a stack trace.
func Traceback(stack []byte) Field {
	return func(e *Entry) { e.Traceback = string(stack) }
}
