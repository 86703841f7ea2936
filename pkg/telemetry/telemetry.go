// Package telemetry records hook execution metrics with OpenTelemetry and
// optionally exports them to an OTLP collector over gRPC.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "promptctl"

// Environment variables read by LoadConfig.
const (
	EnvEndpoint = "PROMPTCTL_OTEL_ENDPOINT"
	EnvInsecure = "PROMPTCTL_OTEL_INSECURE"
)

// Config holds exporter settings. An empty Endpoint disables export.
type Config struct {
	Endpoint string
	Insecure bool
	Version  string
}

// LoadConfig reads exporter settings from the environment.
func LoadConfig() Config {
	insecure, _ := strconv.ParseBool(os.Getenv(EnvInsecure))
	return Config{
		Endpoint: os.Getenv(EnvEndpoint),
		Insecure: insecure,
	}
}

// Enabled reports whether metrics leave the process.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Recorder implements engine.Metrics on top of OpenTelemetry instruments.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	events          metric.Int64Counter
	eventDuration   metric.Float64Histogram
	handlersMatched metric.Int64Histogram
	handlers        metric.Int64Counter
	handlerDuration metric.Float64Histogram
	actions         metric.Int64Counter
	actionDuration  metric.Float64Histogram
}

// New returns a Recorder exporting to cfg.Endpoint, or a no-op Recorder
// when export is disabled.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if !cfg.Enabled() {
		return Noop(), nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	return NewWithReader(ctx, sdkmetric.NewPeriodicReader(exp), cfg.Version)
}

// NewWithReader builds a Recorder whose measurements are collected by reader.
func NewWithReader(ctx context.Context, reader sdkmetric.Reader, version string) (*Recorder, error) {
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	r, err := newRecorder(provider.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	r.provider = provider
	return r, nil
}

// Noop returns a Recorder that discards every measurement.
func Noop() *Recorder {
	r, _ := newRecorder(noop.NewMeterProvider().Meter(serviceName))
	return r
}

func newRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.events, err = meter.Int64Counter("promptctl_events_total",
		metric.WithDescription("Hook events handled"),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}
	if r.eventDuration, err = meter.Float64Histogram("promptctl_event_duration_ms",
		metric.WithDescription("Time spent handling one hook event"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating event duration histogram: %w", err)
	}
	if r.handlersMatched, err = meter.Int64Histogram("promptctl_event_handlers",
		metric.WithDescription("Handlers matched per hook event"),
		metric.WithUnit("{handler}")); err != nil {
		return nil, fmt.Errorf("creating handlers histogram: %w", err)
	}
	if r.handlers, err = meter.Int64Counter("promptctl_handlers_total",
		metric.WithDescription("Handler executions"),
		metric.WithUnit("{handler}")); err != nil {
		return nil, fmt.Errorf("creating handlers counter: %w", err)
	}
	if r.handlerDuration, err = meter.Float64Histogram("promptctl_handler_duration_ms",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating handler duration histogram: %w", err)
	}
	if r.actions, err = meter.Int64Counter("promptctl_actions_total",
		metric.WithDescription("Action executions"),
		metric.WithUnit("{action}")); err != nil {
		return nil, fmt.Errorf("creating actions counter: %w", err)
	}
	if r.actionDuration, err = meter.Float64Histogram("promptctl_action_duration_ms",
		metric.WithDescription("Action execution time"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating action duration histogram: %w", err)
	}
	return r, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// EventHandled records one processed hook event.
func (r *Recorder) EventHandled(ctx context.Context, hook string, handlers int, d time.Duration) {
	opt := metric.WithAttributes(attribute.String("hook", hook))
	r.events.Add(ctx, 1, opt)
	r.eventDuration.Record(ctx, ms(d), opt)
	r.handlersMatched.Record(ctx, int64(handlers), opt)
}

// HandlerExecuted records one handler run.
func (r *Recorder) HandlerExecuted(ctx context.Context, hook, handler string, success bool, d time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("hook", hook),
		attribute.String("handler", handler),
		attribute.Bool("success", success),
	)
	r.handlers.Add(ctx, 1, opt)
	r.handlerDuration.Record(ctx, ms(d), opt)
}

// ActionExecuted records one action run.
func (r *Recorder) ActionExecuted(ctx context.Context, action string, success bool, d time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", success),
	)
	r.actions.Add(ctx, 1, opt)
	r.actionDuration.Record(ctx, ms(d), opt)
}

// Close flushes pending measurements and shuts the exporter down.
func (r *Recorder) Close(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
