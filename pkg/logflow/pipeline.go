package logflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink receives drained entries. Sinks are only called from the drain
// goroutine, or from Stop after it has exited.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// Stats counts what happened to logged entries.
type Stats struct {
	Enqueued    uint64
	Written     uint64
	Evicted     uint64 // dropped because the queue was full
	RateLimited uint64
}

// Pipeline is the capture → process → store logging engine. Log never
// blocks; entries sit in a bounded queue until the background drain writes
// them to every sink.
type Pipeline struct {
	cfg      Config
	minPrio  int
	interval time.Duration
	sinks    []Sink
	logger   *zap.Logger
	now      func() time.Time

	queue chan Entry

	mu          sync.Mutex // guards rate window and enqueue/evict
	windowStart time.Time
	windowCount int

	enqueued, written, evicted, limited atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	drainMu   sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSinks replaces the sinks built from the configuration.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = sinks }
}

// WithLogger reports sink failures to l.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now for entry timestamps and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithConsoleWriter sends console output to w instead of stderr.
func WithConsoleWriter(w io.Writer) Option {
	return func(p *Pipeline) {
		for i, s := range p.sinks {
			if cs, ok := s.(*ConsoleSink); ok {
				p.sinks[i] = NewConsoleSink(w, cs.formatter.cfg)
			}
		}
	}
}

// New builds a pipeline from cfg. It does not start the drain goroutine.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	interval, _ := cfg.flushInterval()
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}

	p := &Pipeline{
		cfg:      cfg,
		minPrio:  cfg.minPriority(),
		interval: interval,
		logger:   zap.NewNop(),
		now:      time.Now,
		queue:    make(chan Entry, size),
		done:     make(chan struct{}),
	}
	if cfg.Console.Enabled {
		p.sinks = append(p.sinks, NewConsoleSink(os.Stderr, cfg.Console))
	}
	if cfg.JSONL.Enabled {
		p.sinks = append(p.sinks, NewJSONLStorage(cfg.JSONL))
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Log captures an entry. It returns immediately: disabled pipelines, levels
// below the configured minimum, and entries over the per-second rate limit
// are dropped; a full queue evicts its oldest entry.
func (p *Pipeline) Log(level Level, msg string, fields ...Field) {
	if p == nil || !p.cfg.Enabled {
		return
	}
	if level.Priority() < p.minPrio {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.allow(now) {
		p.limited.Add(1)
		return
	}

	e := Entry{Timestamp: now, Level: level, Message: msg}
	for _, f := range fields {
		f(&e)
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}

	for {
		select {
		case p.queue <- e:
			p.enqueued.Add(1)
			return
		default:
		}
		select {
		case <-p.queue:
			p.evicted.Add(1)
		default:
		}
	}
}

// allow applies the rate limit. The counter resets once a full second has
// passed since the current window opened. Caller holds p.mu.
func (p *Pipeline) allow(now time.Time) bool {
	if p.cfg.RateLimit <= 0 {
		return true
	}
	if now.Sub(p.windowStart) >= time.Second {
		p.windowStart = now
		p.windowCount = 0
	}
	if p.windowCount >= p.cfg.RateLimit {
		return false
	}
	p.windowCount++
	return true
}

// Start launches the background drain goroutine. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.run(ctx)
	})
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(len(p.queue))
		}
	}
}

// Flush synchronously writes everything currently queued.
func (p *Pipeline) Flush() {
	p.drain(-1)
}

// drain writes up to n queued entries, or everything when n < 0.
func (p *Pipeline) drain(n int) {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()
	for i := 0; n < 0 || i < n; i++ {
		select {
		case e := <-p.queue:
			p.write(e)
		default:
			return
		}
	}
}

func (p *Pipeline) write(e Entry) {
	for _, s := range p.sinks {
		if err := s.Write(e); err != nil {
			p.logger.Warn("log sink write failed",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.String("level", string(e.Level)),
				zap.Error(err))
		}
	}
	p.written.Add(1)
}

// Stop cancels the drain goroutine, waits for it, drains what is left and
// closes every sink. It is safe to call more than once and on a pipeline
// that was never started.
func (p *Pipeline) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
		p.Flush()
		var errs []error
		for _, s := range p.sinks {
			if cerr := s.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:    p.enqueued.Load(),
		Written:     p.written.Load(),
		Evicted:     p.evicted.Load(),
		RateLimited: p.limited.Load(),
	}
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config {
	return p.cfg
}
