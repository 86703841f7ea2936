// Package dispatch is the process boundary between the host and the engine:
// it reads one event from stdin, runs the matching handlers and writes the
// host decision to stdout.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/ormasoftchile/promptctl/pkg/engine"
	"github.com/ormasoftchile/promptctl/pkg/event"
	"github.com/ormasoftchile/promptctl/pkg/executor"
	"github.com/ormasoftchile/promptctl/pkg/logflow"
	"github.com/ormasoftchile/promptctl/pkg/schema"
)

// Dispatcher handles one hook event per Dispatch call.
type Dispatcher struct {
	cfg        *schema.Config
	recorder   engine.Recorder
	metrics    engine.Metrics
	shell      executor.Shell
	logger     *zap.Logger
	engineOpts []engine.Option
	logOpts    []logflow.Option
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig uses cfg instead of the discovered configuration file.
func WithConfig(cfg *schema.Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// WithRecorder sends lifecycle entries to r instead of a pipeline built from
// the configuration's logging section.
func WithRecorder(r engine.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMetrics records execution outcomes to m.
func WithMetrics(m engine.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithShell replaces the process runner used by actions.
func WithShell(sh executor.Shell) Option {
	return func(d *Dispatcher) { d.shell = sh }
}

// WithLogger reports diagnostics to l.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEngineOptions passes extra options to the engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(d *Dispatcher) { d.engineOpts = append(d.engineOpts, opts...) }
}

// WithPipelineOptions passes extra options to the logging pipeline the
// dispatcher builds.
func WithPipelineOptions(opts ...logflow.Option) Option {
	return func(d *Dispatcher) { d.logOpts = append(d.logOpts, opts...) }
}

// New returns a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch reads one event from in, runs it and writes the host decision to
// out when it carries anything beyond the default "continue". Malformed
// input is an error wrapping event.ErrMalformed and nothing is written.
// Handler failures are not errors: they are logged and the host still gets
// a well-formed response.
func (d *Dispatcher) Dispatch(ctx context.Context, in io.Reader, out io.Writer) (res *engine.EventResult, err error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	p, err := event.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON from stdin: %w", err)
	}

	cfg := d.cfg
	if cfg == nil {
		var path string
		if cfg, path, err = schema.LoadDiscovered(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		d.logger.Debug("configuration loaded", zap.String("path", path), zap.Int("handlers", len(cfg.Handlers)))
	}
	policy, err := PolicyFor(cfg.Response)
	if err != nil {
		return nil, err
	}

	rec := d.recorder
	if rec == nil {
		pipeline, err := d.pipeline(cfg)
		if err != nil {
			return nil, err
		}
		pipeline.Start()
		defer pipeline.Stop()
		rec = pipeline
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			d.logger.Error("panic while handling event", zap.Any("panic", r), zap.ByteString("stack", stack))
			rec.Log(logflow.LevelError, "Hook processing panicked",
				logflow.Session(p.SessionID()), logflow.Hook(p.Name()),
				logflow.Err(fmt.Errorf("%v", r)), logflow.Traceback(stack))
			res, err = nil, fmt.Errorf("processing hook event: panic: %v", r)
		}
	}()

	rec.Log(logflow.HookReceived, "Hook received",
		logflow.Session(p.SessionID()), logflow.Hook(p.Name()),
		logflow.Data(map[string]any{
			"cwd":             p.Cwd(),
			"permission_mode": p.String("permission_mode"),
			"hook_input":      p.Raw(),
		}))

	opts := []engine.Option{engine.WithLogger(rec), engine.WithMetrics(d.metrics)}
	if d.shell != nil {
		opts = append(opts, engine.WithShell(d.shell))
	}
	eng, err := engine.New(cfg, append(opts, d.engineOpts...)...)
	if err != nil {
		return nil, err
	}

	res = eng.HandleEvent(ctx, p)
	output := policy.Respond(p, res)

	rec.Log(logflow.LevelInfo, "Hook response generated",
		logflow.Session(p.SessionID()), logflow.Hook(p.Name()),
		logflow.Data(map[string]any{
			"hook_output":       output,
			"handlers_executed": len(res.Handlers),
		}))

	if output.HasContent() {
		if err := json.NewEncoder(out).Encode(output); err != nil {
			return res, fmt.Errorf("write response: %w", err)
		}
	}
	return res, nil
}

func (d *Dispatcher) pipeline(cfg *schema.Config) (*logflow.Pipeline, error) {
	logCfg := logflow.DefaultConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	opts := append([]logflow.Option{logflow.WithLogger(d.logger)}, d.logOpts...)
	return logflow.New(logCfg, opts...)
}
