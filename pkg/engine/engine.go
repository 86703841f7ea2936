// Package engine matches hook events to configured handlers and runs their
// action chains in priority order, halting each chain at its first failure.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/ormasoftchile/promptctl/pkg/eval"
	"github.com/ormasoftchile/promptctl/pkg/event"
	"github.com/ormasoftchile/promptctl/pkg/executor"
	"github.com/ormasoftchile/promptctl/pkg/logflow"
	"github.com/ormasoftchile/promptctl/pkg/schema"
)

// DefaultSlowThreshold marks actions that deserve a SLOW_OPERATION entry.
const DefaultSlowThreshold = time.Second

// Engine holds a loaded handler set. It is safe for sequential use; one
// event is handled end-to-end by one goroutine.
type Engine struct {
	handlers []*schema.Handler
	when     map[string]*vm.Program
	invalid  map[string]error

	rec      Recorder
	metrics  Metrics
	shell    executor.Shell
	renderer eval.Renderer
	branches bool
	slow     time.Duration
	now      func() time.Time
}

// New prepares an engine for cfg. Handler `when` expressions are compiled
// here. A handler whose expression does not compile is disabled and logged;
// the rest of the configuration keeps working.
func New(cfg *schema.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = schema.Empty()
	}
	renderer, err := eval.RendererFor(cfg.Templates)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		handlers: cfg.OrderedHandlers(),
		when:     make(map[string]*vm.Program),
		invalid:  make(map[string]error),
		rec:      nopRecorder{},
		metrics:  nopMetrics{},
		shell:    executor.OSShell{},
		renderer: renderer,
		slow:     DefaultSlowThreshold,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	env := event.NewPayload(nil).Env()
	for _, h := range e.handlers {
		if h.Match == nil || h.Match.When == "" {
			continue
		}
		program, err := expr.Compile(h.Match.When, expr.Env(env), expr.AsBool())
		if err != nil {
			cerr := fmt.Errorf("handler %q: compile when %q: %w", h.Name, h.Match.When, err)
			e.invalid[h.Name] = cerr
			e.rec.Log(logflow.LevelWarn, "Handler disabled: invalid when expression",
				logflow.Handler(h.Name), logflow.Hook(h.Hook), logflow.With("when", h.Match.When), logflow.Err(cerr))
			continue
		}
		e.when[h.Name] = program
	}
	return e, nil
}

// Invalid returns the handlers disabled at load time, keyed by name.
func (e *Engine) Invalid() map[string]error {
	return e.invalid
}

// Handlers returns the handlers in configuration order.
func (e *Engine) Handlers() []*schema.Handler {
	return e.handlers
}

// MatchHandlers returns the enabled handlers for hookName whose predicates
// accept the payload, highest priority first. Equal priorities keep
// configuration order.
func (e *Engine) MatchHandlers(hookName string, p event.Payload) []*schema.Handler {
	var matched []*schema.Handler
	for _, h := range e.handlers {
		if !h.IsEnabled() || h.Hook != hookName {
			continue
		}
		if _, bad := e.invalid[h.Name]; bad {
			continue
		}
		if !e.matches(h, p) {
			continue
		}
		matched = append(matched, h)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

func (e *Engine) matches(h *schema.Handler, p event.Payload) bool {
	m := h.Match
	if m == nil {
		return true
	}
	if m.Tool != nil && !slices.Contains(m.Tools(), p.ToolName()) {
		return false
	}
	if m.FilePattern != "" && !MatchPath(m.FilePattern, p.FilePath()) {
		return false
	}
	if program, ok := e.when[h.Name]; ok {
		out, err := expr.Run(program, p.Env())
		if err != nil {
			e.rec.Log(logflow.LevelWarn, "when expression failed",
				logflow.Session(p.SessionID()), logflow.Hook(p.Name()), logflow.Handler(h.Name),
				logflow.With("when", m.When), logflow.Err(err))
			return false
		}
		if ok, _ := out.(bool); !ok {
			return false
		}
	}
	return true
}

// HandleEvent matches and runs every handler for one event. A failing
// handler does not stop the remaining ones. All handlers share one
// execution context, so state captured by an earlier handler is visible to
// later ones.
func (e *Engine) HandleEvent(ctx context.Context, p event.Payload) *EventResult {
	start := e.now()
	hook, session := p.Name(), p.SessionID()
	res := &EventResult{EventID: uuid.NewString(), Hook: hook, SessionID: session}

	matched := e.MatchHandlers(hook, p)
	for _, h := range matched {
		e.rec.Log(logflow.HookMatched, "Handler matched",
			logflow.Session(session), logflow.Hook(hook), logflow.Handler(h.Name),
			logflow.Data(map[string]any{"priority": h.Priority, "actions": len(h.Actions)}))
	}
	if len(matched) == 0 {
		e.rec.Log(logflow.HookSkipped, "No handlers matched",
			logflow.Session(session), logflow.Hook(hook))
	}

	c := e.NewContext(p)
	for _, h := range matched {
		res.Handlers = append(res.Handlers, e.ExecuteHandler(ctx, h, c))
	}

	res.State = c.State()
	res.Duration = e.now().Sub(start)
	e.rec.Log(logflow.HookExecuted, "Hook processed",
		logflow.Session(session), logflow.Hook(hook), logflow.Duration(res.Duration),
		logflow.Data(map[string]any{"event_id": res.EventID, "handlers": len(matched), "success": res.Success()}))
	e.metrics.EventHandled(ctx, hook, len(matched), res.Duration)
	return res
}

// NewContext creates the execution context for a payload, wired to record
// state changes.
func (e *Engine) NewContext(p event.Payload) *eval.Context {
	return eval.New(p,
		eval.WithRenderer(e.renderer),
		eval.OnStateChange(func(key string, value any) {
			e.rec.Log(logflow.StateChange, "State updated",
				logflow.Session(p.SessionID()), logflow.Hook(p.Name()),
				logflow.Data(map[string]any{"key": key, "value": value}))
		}),
	)
}

// ExecuteHandler runs a handler's actions in order and stops at the first
// failure. The returned result holds every action that ran.
func (e *Engine) ExecuteHandler(ctx context.Context, h *schema.Handler, c *eval.Context) HandlerResult {
	start := e.now()
	p := c.Payload()
	scope := []logflow.Field{logflow.Session(p.SessionID()), logflow.Hook(p.Name()), logflow.Handler(h.Name)}

	e.rec.Log(logflow.HandlerStart, "Handler started",
		append(scope, logflow.Data(map[string]any{"priority": h.Priority, "action_count": len(h.Actions)}))...)

	results, err := e.runActions(ctx, h, h.Actions, c, scope)
	hr := HandlerResult{
		Handler:  h.Name,
		Results:  results,
		Success:  err == nil,
		Err:      err,
		Duration: e.now().Sub(start),
	}

	level, msg := logflow.HandlerComplete, "Handler completed"
	fields := append(scope, logflow.Duration(hr.Duration),
		logflow.Data(map[string]any{"actions_executed": len(results), "success": hr.Success}))
	if err != nil {
		level, msg = logflow.HandlerError, "Handler halted"
		fields = append(fields, logflow.Err(err))
	}
	e.rec.Log(level, msg, fields...)
	e.metrics.HandlerExecuted(ctx, p.Name(), h.Name, hr.Success, hr.Duration)
	return hr
}

// runActions executes configs in order, returning the results so far and
// the error that halted the chain.
func (e *Engine) runActions(ctx context.Context, h *schema.Handler, configs []schema.Action, c *eval.Context, scope []logflow.Field) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(configs))
	for _, cfg := range configs {
		ar := e.runAction(ctx, h, cfg, c, scope)
		results = append(results, ar)
		if ar.Err != nil {
			return results, ar.Err
		}
	}
	return results, nil
}

func (e *Engine) runAction(ctx context.Context, h *schema.Handler, cfg schema.Action, c *eval.Context, scope []logflow.Field) ActionResult {
	kind := string(cfg.Action)
	fields := append(slices.Clone(scope), logflow.Action(kind))
	e.rec.Log(logflow.ActionStart, "Action started", fields...)

	start := e.now()
	ar := ActionResult{Action: kind}

	res, err := e.execute(ctx, h, cfg, c, &ar)
	ar.Duration = e.now().Sub(start)
	ar.Result = res

	fields = append(fields, logflow.Duration(ar.Duration))
	if err != nil {
		ar.Status, ar.Err, ar.Error = StatusError, err, err.Error()
		e.rec.Log(logflow.ActionError, "Action failed", append(fields, logflow.Err(err))...)
	} else {
		ar.Status = StatusSuccess
		e.rec.Log(logflow.ActionResult, "Action completed",
			append(fields, logflow.Data(map[string]any{"status": StatusSuccess, "result": map[string]any(res)}))...)
	}
	if e.slow > 0 && ar.Duration >= e.slow {
		e.rec.Log(logflow.SlowOperation, "Slow action", fields...)
	}
	e.metrics.ActionExecuted(ctx, kind, err == nil, ar.Duration)
	return ar
}

// execute builds and runs one action, applying strict validation and
// optional branch execution.
func (e *Engine) execute(ctx context.Context, h *schema.Handler, cfg schema.Action, c *eval.Context, ar *ActionResult) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	action, err := executor.New(cfg, e.shell)
	if err != nil {
		return nil, err
	}
	res, err := action.Execute(ctx, c)
	if err != nil {
		return res, err
	}

	switch a := action.(type) {
	case *executor.Validate:
		if passed, _ := res["passed"].(bool); h.StrictValidation && !passed {
			return res, &executor.ValidationError{Failed: executor.FailedChecks(res)}
		}
	case *executor.Conditional:
		if !e.branches {
			break
		}
		name, _ := res["branch_executed"].(string)
		branch := a.Branch(name)
		if len(branch) == 0 {
			break
		}
		scope := []logflow.Field{
			logflow.Session(c.Payload().SessionID()), logflow.Hook(c.Payload().Name()), logflow.Handler(h.Name),
		}
		nested, berr := e.runActions(ctx, h, branch, c, scope)
		ar.Branch = nested
		if berr != nil {
			return res, fmt.Errorf("%s branch: %w", name, berr)
		}
	}
	return res, nil
}
