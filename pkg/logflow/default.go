package logflow

import "sync"

var (
	defaultMu       sync.Mutex
	defaultPipeline *Pipeline
)

// Default returns the process-wide pipeline, creating and starting one with
// DefaultConfig on first use.
func Default() *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPipeline == nil {
		p, err := New(DefaultConfig())
		if err != nil {
			// DefaultConfig always validates.
			panic(err)
		}
		p.Start()
		defaultPipeline = p
	}
	return defaultPipeline
}

// Configure replaces the process-wide pipeline with a started one built from
// cfg. The previous pipeline is stopped after its queue is drained.
func Configure(cfg Config, opts ...Option) (*Pipeline, error) {
	p, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	p.Start()
	if prev := SetDefault(p); prev != nil {
		_ = prev.Stop()
	}
	return p, nil
}

// SetDefault installs p as the process-wide pipeline and returns the previous
// one without stopping it.
func SetDefault(p *Pipeline) *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultPipeline
	defaultPipeline = p
	return prev
}

// Debug logs through the process-wide pipeline.
func Debug(msg string, fields ...Field) { Default().Log(LevelDebug, msg, fields...) }

// Info logs through the process-wide pipeline.
func Info(msg string, fields ...Field) { Default().Log(LevelInfo, msg, fields...) }

// Warn logs through the process-wide pipeline.
func Warn(msg string, fields ...Field) { Default().Log(LevelWarn, msg, fields...) }

// Error logs through the process-wide pipeline.
func Error(msg string, fields ...Field) { Default().Log(LevelError, msg, fields...) }
