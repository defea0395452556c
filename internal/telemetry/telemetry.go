// Package telemetry configures OpenTelemetry tracing for the dashboard. The trace mode decides
// how much gets a span: page requests only, or page requests plus every widget fetch and
// backend call.
package telemetry

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is the resource service name used when none is configured.
const DefaultServiceName = "gh-dashboard"

// Mode selects how much the dashboard traces.
type Mode string

const (
	ModeOff Mode = "off"
	// ModeErrors keeps a thin sample of page requests, enough to catch failing routes.
	ModeErrors Mode = "errors"
	// ModeSampled traces a ratio of page requests. It is the default.
	ModeSampled Mode = "sampled"
	// ModeDetailed traces every request, including health and metrics scrapes, and adds
	// spans for widget fetches and backend calls.
	ModeDetailed Mode = "detailed"
)

// minErrorsRatio is the floor of ModeErrors sampling when no ratio is configured.
const minErrorsRatio = 0.01

var current atomic.Value

// ParseMode maps a configured mode name to a Mode. Blank and unknown names mean ModeSampled.
func ParseMode(raw string) Mode {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeOff, ModeErrors, ModeDetailed:
		return mode
	default:
		return ModeSampled
	}
}

// Enabled reports whether m records any span.
func (m Mode) Enabled() bool {
	return m != ModeOff
}

// Detailed reports whether widget fetches, backend calls and operational endpoints get spans.
func (m Mode) Detailed() bool {
	return m == ModeDetailed
}

// Sampler returns the root sampler for m. Ratios outside [0, 1] are clamped.
func (m Mode) Sampler(ratio float64) sdktrace.Sampler {
	ratio = max(0, min(1, ratio))
	switch m {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	case ModeErrors:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(max(ratio, minErrorsRatio)))
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Current reports the mode installed by the last Setup. It is ModeOff before Setup and
// after Shutdown.
func Current() Mode {
	mode, _ := current.Load().(Mode)
	if mode == "" {
		return ModeOff
	}
	return mode
}

// Config configures tracing.
type Config struct {
	Enabled     bool
	ServiceName string
	Mode        string
	SampleRatio float64
	// Processors are attached to the provider, e.g. an exporter batcher or a test recorder.
	Processors []sdktrace.SpanProcessor
}

// Runtime is the installed tracer provider.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Mode           Mode
	// Shutdown turns tracing off and flushes the provider.
	Shutdown func(ctx context.Context) error
}

// Setup installs a global tracer provider for cfg. A disabled config still installs a
// provider, one that never samples, so spans started elsewhere are always safe to end.
func Setup(cfg Config) (Runtime, error) {
	mode := ModeOff
	if cfg.Enabled {
		mode = ParseMode(cfg.Mode)
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("gh_dashboard.trace_mode", string(mode)),
		),
	)
	if err != nil {
		return Runtime{}, err
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(mode.Sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	}
	for _, processor := range cfg.Processors {
		if processor != nil {
			options = append(options, sdktrace.WithSpanProcessor(processor))
		}
	}
	provider := sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)
	current.Store(mode)

	return Runtime{
		TracerProvider: provider,
		Mode:           mode,
		Shutdown: func(ctx context.Context) error {
			current.Store(ModeOff)
			return provider.Shutdown(ctx)
		},
	}, nil
}

// StartSpan starts a dependency span on the global tracer in ModeDetailed. In every other
// mode it returns ctx unchanged with a non-recording span, so callers may always End it.
func StartSpan(ctx context.Context, scope, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !Current().Detailed() {
		return ctx, noop.Span{}
	}
	return otel.Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}
