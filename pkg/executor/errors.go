package executor

import (
	"fmt"
	"strings"
)

// ConfigError reports an action that cannot be built or run as configured:
// an unknown action type, git operation or check type, or an unusable field.
type ConfigError struct {
	Action string
	Field  string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s action: %s: %s", e.Action, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s action: %s", e.Action, e.Msg)
}

// CommandError reports a command action whose process failed to spawn,
// timed out, or exited non-zero.
type CommandError struct {
	Script   string
	ExitCode int
	Stderr   string
	Err      error // spawn or context error; nil for a plain non-zero exit
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q: %v", e.Script, e.Err)
	}
	msg := fmt.Sprintf("command %q exited with code %d", e.Script, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ValidationError reports failed checks of a validate action when the
// handler runs with strict validation.
type ValidationError struct {
	Failed []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Failed, ", "))
}
