package engine

import (
	"time"

	"github.com/ormasoftchile/promptctl/pkg/executor"
)

// Action statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ActionResult is the outcome of one action in a handler chain.
type ActionResult struct {
	Action   string          `json:"action"`
	Status   string          `json:"status"`
	Result   executor.Result `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Branch   []ActionResult  `json:"branch,omitempty"`
	Duration time.Duration   `json:"-"`
	Err      error           `json:"-"`
}

// HandlerResult is the outcome of one handler. Results holds the actions
// that ran, which is fewer than configured when the chain halted.
type HandlerResult struct {
	Handler  string         `json:"handler"`
	Results  []ActionResult `json:"results"`
	Success  bool           `json:"success"`
	Duration time.Duration  `json:"-"`
	Err      error          `json:"-"`
}

// ActionsExecuted counts the actions that ran.
func (r HandlerResult) ActionsExecuted() int {
	return len(r.Results)
}

// EventResult is the outcome of one hook event.
type EventResult struct {
	EventID   string          `json:"event_id"`
	Hook      string          `json:"hook"`
	SessionID string          `json:"session_id"`
	Handlers  []HandlerResult `json:"handlers"`
	State     map[string]any  `json:"state"`
	Duration  time.Duration   `json:"-"`
}

// Success reports whether every handler completed.
func (r *EventResult) Success() bool {
	for _, h := range r.Handlers {
		if !h.Success {
			return false
		}
	}
	return true
}

// Prompts collects rendered prompts from successful prompt actions, in
// execution order, including those run inside conditional branches.
func (r *EventResult) Prompts() []string {
	var out []string
	var walk func([]ActionResult)
	walk = func(results []ActionResult) {
		for _, a := range results {
			if a.Status == StatusSuccess && a.Action == "prompt" {
				if s, ok := a.Result["prompt"].(string); ok && s != "" {
					out = append(out, s)
				}
			}
			walk(a.Branch)
		}
	}
	for _, h := range r.Handlers {
		walk(h.Results)
	}
	return out
}
