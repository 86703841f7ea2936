package engine

import (
	"context"
	"time"

	"github.com/ormasoftchile/promptctl/pkg/eval"
	"github.com/ormasoftchile/promptctl/pkg/executor"
	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// Recorder receives lifecycle log entries. *logflow.Pipeline implements it.
type Recorder interface {
	Log(level logflow.Level, msg string, fields ...logflow.Field)
}

// Metrics receives execution outcomes. pkg/telemetry provides the OTel
// implementation.
type Metrics interface {
	EventHandled(ctx context.Context, hook string, handlers int, d time.Duration)
	HandlerExecuted(ctx context.Context, hook, handler string, success bool, d time.Duration)
	ActionExecuted(ctx context.Context, action string, success bool, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Log(logflow.Level, string, ...logflow.Field) {}

type nopMetrics struct{}

func (nopMetrics) EventHandled(context.Context, string, int, time.Duration)             {}
func (nopMetrics) HandlerExecuted(context.Context, string, string, bool, time.Duration) {}
func (nopMetrics) ActionExecuted(context.Context, string, bool, time.Duration)          {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sends lifecycle entries to r.
func WithLogger(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithMetrics records outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithShell replaces the process runner used by shell-invoking actions.
func WithShell(sh executor.Shell) Option {
	return func(e *Engine) { e.shell = sh }
}

// WithBranchExecution makes conditional actions run their selected branch
// inline. Branch results are nested under the conditional's result and a
// failing branch action fails the conditional.
func WithBranchExecution() Option {
	return func(e *Engine) { e.branches = true }
}

// WithStrictTemplates rejects actions whose templates leave placeholders
// unresolved, regardless of the configured template mode.
func WithStrictTemplates() Option {
	return func(e *Engine) { e.renderer = eval.Strict{} }
}

// WithClock overrides time.Now for durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSlowThreshold sets the action duration that triggers a SLOW_OPERATION
// entry. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(e *Engine) { e.slow = d }
}
