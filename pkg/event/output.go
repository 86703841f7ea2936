package event

// PermissionDecision is the PreToolUse verdict.
type PermissionDecision string

const PermissionDeny PermissionDecision = "deny"

// BlockDecision is the Stop/SubagentStop verdict.
type BlockDecision string

const BlockDecisionBlock BlockDecision = "block"

// Output is the decision object returned to the host. Decision and Reason
// are only read by the host for Stop and SubagentStop.
type Output struct {
	Continue           bool          `json:"continue"`
	StopReason         string        `json:"stopReason,omitempty"`
	SuppressOutput     bool          `json:"suppressOutput"`
	SystemMessage      string        `json:"systemMessage,omitempty"`
	Decision           BlockDecision `json:"decision,omitempty"`
	Reason             string        `json:"reason,omitempty"`
	HookSpecificOutput any           `json:"hookSpecificOutput,omitempty"`
}

// PreToolUseOutput is the hook-specific part of a PreToolUse response.
type PreToolUseOutput struct {
	HookEventName            string             `json:"hookEventName"`
	PermissionDecision       PermissionDecision `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string             `json:"permissionDecisionReason,omitempty"`
}

// ContextOutput carries additional context for UserPromptSubmit and
// SessionStart responses.
type ContextOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// NewOutput returns the default "continue" decision.
func NewOutput() *Output {
	return &Output{Continue: true}
}

// HasContent reports whether the output differs from the bare success signal
// and therefore must be written to the host.
func (o *Output) HasContent() bool {
	if o == nil {
		return false
	}
	return o.HookSpecificOutput != nil || o.SystemMessage != "" || o.Decision != "" || !o.Continue
}
