// Package schema defines the promptctl.yaml configuration types: handlers,
// their match predicates and action chains.
package schema

import (
	"sort"
	"time"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// CurrentVersion is the configuration format version written by `setup`.
const CurrentVersion = "1.0"

// Config is the root of promptctl.yaml.
type Config struct {
	Version   string              `yaml:"version,omitempty"   json:"version,omitempty"`
	Handlers  map[string]*Handler `yaml:"handlers,omitempty"  json:"handlers,omitempty"`
	Logging   *logflow.Config     `yaml:"logging,omitempty"   json:"logging,omitempty"`
	Templates string              `yaml:"templates,omitempty" json:"templates,omitempty" jsonschema:"enum=lenient,enum=strict"`
	Response  string              `yaml:"response,omitempty"  json:"response,omitempty"  jsonschema:"enum=continue,enum=context,enum=guard"`

	// HandlerOrder holds handler names in the order they appear in the
	// source document. Map decoding loses it; priority ties need it.
	HandlerOrder []string `yaml:"-" json:"-"`
}

// Handler is one named rule: a trigger, optional predicates, and an ordered
// action chain.
type Handler struct {
	Name             string   `yaml:"-" json:"-"`
	Enabled          *bool    `yaml:"enabled,omitempty"           json:"enabled,omitempty"`
	Hook             string   `yaml:"hook"                        json:"hook" jsonschema:"enum=PreToolUse,enum=PostToolUse,enum=UserPromptSubmit,enum=Notification,enum=Stop,enum=SubagentStop,enum=PreCompact,enum=SessionStart,enum=SessionEnd"`
	Priority         int      `yaml:"priority,omitempty"          json:"priority,omitempty"`
	Match            *Match   `yaml:"match,omitempty"             json:"match,omitempty"`
	Actions          []Action `yaml:"actions,omitempty"           json:"actions,omitempty"`
	StrictValidation bool     `yaml:"strict_validation,omitempty" json:"strict_validation,omitempty"`
}

// IsEnabled reports whether the handler participates in matching.
func (h *Handler) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Match holds the optional predicates a handler applies to an event.
type Match struct {
	Tool        any    `yaml:"tool,omitempty"         json:"tool,omitempty"` // string or []string
	FilePattern string `yaml:"file_pattern,omitempty" json:"file_pattern,omitempty"`
	When        string `yaml:"when,omitempty"         json:"when,omitempty"`
}

// Tools normalizes Tool into a list. A nil result means "any tool".
func (m *Match) Tools() []string {
	if m == nil {
		return nil
	}
	switch v := m.Tool.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ActionType enumerates the closed set of action kinds.
type ActionType string

const (
	ActionPrompt      ActionType = "prompt"
	ActionCommand     ActionType = "command"
	ActionGit         ActionType = "git"
	ActionValidate    ActionType = "validate"
	ActionConditional ActionType = "conditional"
)

// ActionTypes lists every ActionType.
func ActionTypes() []ActionType {
	return []ActionType{ActionPrompt, ActionCommand, ActionGit, ActionValidate, ActionConditional}
}

// Git operations.
const (
	GitStage  = "stage"
	GitCommit = "commit"
)

// Check types for validate actions.
const (
	CheckFileExists      = "file_exists"
	CheckCommandSucceeds = "command_succeeds"
)

// Action is one step of a handler chain. Fields are populated based on Action.
type Action struct {
	Action ActionType `yaml:"action" json:"action" jsonschema:"enum=prompt,enum=command,enum=git,enum=validate,enum=conditional"`

	// prompt
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// command
	Script string `yaml:"script,omitempty" json:"script,omitempty"`

	// prompt and command
	Capture string `yaml:"capture,omitempty" json:"capture,omitempty"`

	// git
	Operation string   `yaml:"operation,omitempty" json:"operation,omitempty" jsonschema:"enum=stage,enum=commit"`
	Files     []string `yaml:"files,omitempty"     json:"files,omitempty"`
	Message   string   `yaml:"message,omitempty"   json:"message,omitempty"`

	// validate
	Checks []Check `yaml:"checks,omitempty" json:"checks,omitempty"`

	// conditional
	Condition string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Then      []Action `yaml:"then,omitempty"      json:"then,omitempty"`
	Else      []Action `yaml:"else,omitempty"      json:"else,omitempty"`

	// Timeout bounds shell-invoking actions, as a Go duration ("30s").
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. Zero means no limit.
func (a Action) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Timeout)
}

// Check is one validate-action check.
type Check struct {
	Type    string `yaml:"type"              json:"type" jsonschema:"enum=file_exists,enum=command_succeeds"`
	Path    string `yaml:"path,omitempty"    json:"path,omitempty"`
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
}

// OrderedHandlers returns handlers in configuration order. Handlers missing
// from HandlerOrder (built in code rather than loaded) follow, sorted by name.
func (c *Config) OrderedHandlers() []*Handler {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.Handlers))
	out := make([]*Handler, 0, len(c.Handlers))
	for _, name := range c.HandlerOrder {
		if h, ok := c.Handlers[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, h)
		}
	}
	var rest []string
	for name := range c.Handlers {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, c.Handlers[name])
	}
	return out
}

// AddHandler appends a handler in configuration order.
func (c *Config) AddHandler(name string, h *Handler) {
	if c.Handlers == nil {
		c.Handlers = make(map[string]*Handler)
	}
	h.Name = name
	if _, exists := c.Handlers[name]; !exists {
		c.HandlerOrder = append(c.HandlerOrder, name)
	}
	c.Handlers[name] = h
}
