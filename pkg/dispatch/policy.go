package dispatch

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/promptctl/pkg/engine"
	"github.com/ormasoftchile/promptctl/pkg/event"
	"github.com/ormasoftchile/promptctl/pkg/executor"
)

// Response modes accepted in the configuration's `response` field.
const (
	ResponseContinue = "continue"
	ResponseContext  = "context"
	ResponseGuard    = "guard"
)

// Policy turns the engine's result into the decision returned to the host.
type Policy interface {
	Respond(p event.Payload, res *engine.EventResult) *event.Output
}

// ContinuePolicy always lets the host proceed and adds nothing.
type ContinuePolicy struct{}

// Respond implements Policy.
func (ContinuePolicy) Respond(event.Payload, *engine.EventResult) *event.Output {
	return event.NewOutput()
}

// ContextPolicy forwards rendered prompts to the host. Events that accept
// additional context (UserPromptSubmit, SessionStart) receive the prompts
// that way; every other event receives them as a system message.
type ContextPolicy struct{}

// Respond implements Policy.
func (ContextPolicy) Respond(p event.Payload, res *engine.EventResult) *event.Output {
	out := event.NewOutput()
	if res == nil {
		return out
	}
	prompts := res.Prompts()
	if len(prompts) == 0 {
		return out
	}
	text := strings.Join(prompts, "\n\n")

	switch p.Name() {
	case event.UserPromptSubmit, event.SessionStart:
		out.HookSpecificOutput = event.ContextOutput{
			HookEventName:     p.Name(),
			AdditionalContext: text,
		}
	default:
		out.SystemMessage = text
	}
	return out
}

// GuardPolicy behaves like ContextPolicy and additionally turns failures into
// verdicts: a PreToolUse event with a failed handler or validation is denied,
// and a Stop or SubagentStop event is blocked so the agent keeps working.
// Failures on other events are reported as a system message.
type GuardPolicy struct{}

// Respond implements Policy.
func (GuardPolicy) Respond(p event.Payload, res *engine.EventResult) *event.Output {
	out := ContextPolicy{}.Respond(p, res)
	reasons := failures(res)
	if len(reasons) == 0 {
		return out
	}
	reason := strings.Join(reasons, "; ")

	switch p.Name() {
	case event.PreToolUse:
		out.HookSpecificOutput = event.PreToolUseOutput{
			HookEventName:            event.PreToolUse,
			PermissionDecision:       event.PermissionDeny,
			PermissionDecisionReason: reason,
		}
	case event.Stop, event.SubagentStop:
		out.Decision = event.BlockDecisionBlock
		out.Reason = reason
	default:
		if out.SystemMessage != "" {
			out.SystemMessage += "\n\n"
		}
		out.SystemMessage += reason
	}
	return out
}

// failures describes every failed handler and every validate action whose
// checks did not all pass, in execution order.
func failures(res *engine.EventResult) []string {
	if res == nil {
		return nil
	}
	var out []string
	var walk func(handler string, results []engine.ActionResult)
	walk = func(handler string, results []engine.ActionResult) {
		for _, a := range results {
			if a.Status == engine.StatusSuccess && a.Action == "validate" {
				if passed, _ := a.Result["passed"].(bool); !passed {
					out = append(out, fmt.Sprintf("%s: validation failed: %s",
						handler, strings.Join(executor.FailedChecks(a.Result), ", ")))
				}
			}
			walk(handler, a.Branch)
		}
	}
	for _, h := range res.Handlers {
		walk(h.Handler, h.Results)
		if !h.Success {
			msg := "failed"
			if h.Err != nil {
				msg = h.Err.Error()
			}
			out = append(out, h.Handler+": "+msg)
		}
	}
	return out
}

// PolicyFor returns the policy for a configured response mode. An empty mode
// selects ContinuePolicy.
func PolicyFor(mode string) (Policy, error) {
	switch mode {
	case "", ResponseContinue:
		return ContinuePolicy{}, nil
	case ResponseContext:
		return ContextPolicy{}, nil
	case ResponseGuard:
		return GuardPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown response mode %q", mode)
	}
}
