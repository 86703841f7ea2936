// Package executor implements the handler actions: prompt, command, git,
// validate and conditional. Every action renders its templates through the
// event's eval.Context and returns a structured result.
package executor

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ormasoftchile/promptctl/pkg/eval"
	"github.com/ormasoftchile/promptctl/pkg/schema"
)

// Result is the structured outcome of one action. It always carries "type".
type Result map[string]any

// Action is one executable step of a handler chain.
type Action interface {
	Type() schema.ActionType
	Execute(ctx context.Context, c *eval.Context) (Result, error)
}

// New builds the action for a configuration entry. This is the only place
// the closed set of action types is enumerated.
func New(cfg schema.Action, sh Shell) (Action, error) {
	if sh == nil {
		sh = OSShell{}
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, &ConfigError{Action: string(cfg.Action), Field: "timeout", Msg: err.Error()}
	}

	switch cfg.Action {
	case schema.ActionPrompt:
		return &Prompt{Template: cfg.Template, Capture: cfg.Capture}, nil
	case schema.ActionCommand:
		return &Command{Script: cfg.Script, Capture: cfg.Capture, Timeout: timeout, shell: sh}, nil
	case schema.ActionGit:
		switch cfg.Operation {
		case schema.GitStage, schema.GitCommit:
		default:
			return nil, &ConfigError{Action: "git", Field: "operation", Msg: "unknown operation " + quote(cfg.Operation)}
		}
		return &Git{Operation: cfg.Operation, Files: cfg.Files, Message: cfg.Message, Timeout: timeout, shell: sh}, nil
	case schema.ActionValidate:
		for _, c := range cfg.Checks {
			switch c.Type {
			case schema.CheckFileExists, schema.CheckCommandSucceeds:
			default:
				return nil, &ConfigError{Action: "validate", Field: "checks", Msg: "unknown check type " + quote(c.Type)}
			}
		}
		return &Validate{Checks: cfg.Checks, Timeout: timeout, shell: sh}, nil
	case schema.ActionConditional:
		return &Conditional{Condition: cfg.Condition, Then: cfg.Then, Else: cfg.Else}, nil
	default:
		return nil, &ConfigError{Action: string(cfg.Action), Msg: "unknown action type " + quote(string(cfg.Action))}
	}
}

func quote(s string) string {
	return `"` + s + `"`
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Prompt renders a template into a prompt result.
type Prompt struct {
	Template string
	Capture  string
}

// Type implements Action.
func (a *Prompt) Type() schema.ActionType { return schema.ActionPrompt }

// Execute implements Action.
func (a *Prompt) Execute(_ context.Context, c *eval.Context) (Result, error) {
	rendered, err := c.RenderE(a.Template)
	if err != nil {
		return nil, err
	}
	if a.Capture != "" {
		c.SetState(a.Capture, rendered)
	}
	return Result{"type": "prompt", "prompt": rendered}, nil
}

// Command runs a rendered script through the shell.
type Command struct {
	Script  string
	Capture string
	Timeout time.Duration
	shell   Shell
}

// Type implements Action.
func (a *Command) Type() schema.ActionType { return schema.ActionCommand }

// Execute implements Action. The capture key is written before a non-zero
// exit is turned into a *CommandError.
func (a *Command) Execute(ctx context.Context, c *eval.Context) (Result, error) {
	script, err := c.RenderE(a.Script)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()

	res, err := a.shell.Run(ctx, script)
	if err != nil {
		cerr := &CommandError{Script: script, ExitCode: -1, Err: err}
		if res != nil {
			cerr.Stderr = res.Stderr
		}
		return nil, cerr
	}

	if a.Capture != "" {
		c.SetState(a.Capture, strings.TrimSpace(res.Stdout))
	}
	out := Result{
		"type":      "command",
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
	}
	if res.ExitCode != 0 {
		return out, &CommandError{Script: script, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return out, nil
}

// Git stages files or commits. It is best-effort: git failures are recorded
// in the result and never fail the action.
type Git struct {
	Operation string
	Files     []string
	Message   string
	Timeout   time.Duration
	shell     Shell
}

// Type implements Action.
func (a *Git) Type() schema.ActionType { return schema.ActionGit }

// Execute implements Action.
func (a *Git) Execute(ctx context.Context, c *eval.Context) (Result, error) {
	out := Result{"type": "git", "operation": a.Operation}
	var (
		exitCodes []int
		failures  []string
	)
	run := func(args ...string) {
		runCtx, cancel := withTimeout(ctx, a.Timeout)
		defer cancel()
		res, err := a.shell.Exec(runCtx, "git", args...)
		if err != nil {
			exitCodes = append(exitCodes, -1)
			failures = append(failures, err.Error())
			return
		}
		exitCodes = append(exitCodes, res.ExitCode)
		if res.ExitCode != 0 {
			failures = append(failures, strings.TrimSpace(res.Stderr))
		}
	}

	switch a.Operation {
	case schema.GitStage:
		files := make([]string, 0, len(a.Files))
		for _, f := range a.Files {
			rendered, err := c.RenderE(f)
			if err != nil {
				return nil, err
			}
			files = append(files, rendered)
		}
		out["files"] = files
		for _, f := range files {
			run("add", f)
		}
	case schema.GitCommit:
		msg, err := c.RenderE(a.Message)
		if err != nil {
			return nil, err
		}
		out["message"] = msg
		run("commit", "-m", msg)
	default:
		return nil, &ConfigError{Action: "git", Field: "operation", Msg: "unknown operation " + quote(a.Operation)}
	}

	out["exit_codes"] = exitCodes
	if len(failures) > 0 {
		out["failures"] = failures
	}
	return out, nil
}

// Validate runs every check and reports the aggregate outcome. A failed
// check never fails the action by itself.
type Validate struct {
	Checks  []schema.Check
	Timeout time.Duration
	shell   Shell
}

// Type implements Action.
func (a *Validate) Type() schema.ActionType { return schema.ActionValidate }

// Execute implements Action.
func (a *Validate) Execute(ctx context.Context, c *eval.Context) (Result, error) {
	passed := true
	outcomes := make([]map[string]any, 0, len(a.Checks))
	for _, check := range a.Checks {
		var (
			target string
			ok     bool
			err    error
		)
		switch check.Type {
		case schema.CheckFileExists:
			if target, err = c.RenderE(check.Path); err != nil {
				return nil, err
			}
			_, statErr := os.Stat(target)
			ok = statErr == nil
		case schema.CheckCommandSucceeds:
			if target, err = c.RenderE(check.Command); err != nil {
				return nil, err
			}
			ok = a.commandSucceeds(ctx, target)
		default:
			return nil, &ConfigError{Action: "validate", Field: "checks", Msg: "unknown check type " + quote(check.Type)}
		}
		if !ok {
			passed = false
		}
		outcomes = append(outcomes, map[string]any{"type": check.Type, "target": target, "passed": ok})
	}
	return Result{"type": "validate", "passed": passed, "checks": outcomes}, nil
}

func (a *Validate) commandSucceeds(ctx context.Context, script string) bool {
	ctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()
	res, err := a.shell.Run(ctx, script)
	return err == nil && res.ExitCode == 0
}

// FailedChecks lists the targets of failed checks in a validate result.
func FailedChecks(r Result) []string {
	checks, _ := r["checks"].([]map[string]any)
	var failed []string
	for _, c := range checks {
		if ok, _ := c["passed"].(bool); !ok {
			failed = append(failed, c["type"].(string)+" "+c["target"].(string))
		}
	}
	return failed
}

// Conditional evaluates a rendered `left == right` condition and reports
// which branch applies. It never runs the branch itself.
type Conditional struct {
	Condition string
	Then      []schema.Action
	Else      []schema.Action
}

// Type implements Action.
func (a *Conditional) Type() schema.ActionType { return schema.ActionConditional }

// Branch names.
const (
	BranchThen = "then"
	BranchElse = "else"
)

// Execute implements Action. branch_executed is nil when the selected
// branch is empty.
func (a *Conditional) Execute(_ context.Context, c *eval.Context) (Result, error) {
	rendered, err := c.RenderE(a.Condition)
	if err != nil {
		return nil, err
	}
	met := EvaluateCondition(rendered)
	out := Result{"type": "conditional", "condition_met": met, "branch_executed": nil}
	if met && len(a.Then) > 0 {
		out["branch_executed"] = BranchThen
	} else if !met && len(a.Else) > 0 {
		out["branch_executed"] = BranchElse
	}
	return out, nil
}

// Branch returns the actions of a named branch.
func (a *Conditional) Branch(name string) []schema.Action {
	switch name {
	case BranchThen:
		return a.Then
	case BranchElse:
		return a.Else
	}
	return nil
}

// EvaluateCondition supports only `left == right`, comparing both sides
// after trimming whitespace and surrounding quotes. Anything else is false.
func EvaluateCondition(cond string) bool {
	left, right, ok := strings.Cut(cond, " == ")
	if !ok {
		return false
	}
	return trimOperand(left) == trimOperand(right)
}

func trimOperand(s string) string {
	return strings.Trim(strings.TrimSpace(s), `'"`)
}
