package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
)

// Environment variables read by TracingConfigFromEnv.
const (
	TracingEnabledEnv     = "RF_TRACING_ENABLED"
	TracingExporterEnv    = "RF_TRACING_EXPORTER"
	TracingServiceNameEnv = "RF_TRACING_SERVICE_NAME"
	TracingSampleRatioEnv = "RF_TRACING_SAMPLE_RATIO"
	TracingEndpointEnv    = "RF_OTLP_ENDPOINT"
)

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig selects the span exporter and sampling for the process.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// Exporter is "stdout" or "otlp".
	Exporter string
	// Endpoint is the OTLP collector address.
	Endpoint    string
	SampleRatio float64
	// Output receives stdout spans; nil means os.Stdout.
	Output io.Writer
}

// ShutdownFunc flushes and stops the installed tracer provider.
type ShutdownFunc func(context.Context) error

// TracingConfigFromEnv reads the RF_TRACING_* variables. Tracing is off
// unless RF_TRACING_ENABLED is true; a malformed or out-of-range sample
// ratio falls back to 1.
func TracingConfigFromEnv() TracingConfig {
	return tracingConfigFrom(os.Getenv)
}

func tracingConfigFrom(getenv func(string) string) TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(getenv(TracingEnabledEnv), "true"),
		ServiceName: getenv(TracingServiceNameEnv),
		Exporter:    strings.ToLower(getenv(TracingExporterEnv)),
		Endpoint:    getenv(TracingEndpointEnv),
		SampleRatio: 1,
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rfsim"
	}
	if raw := getenv(TracingSampleRatioEnv); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			cfg.SampleRatio = parsed
		}
	}
	return cfg
}

type exporterFactory func(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error)

var spanExporters = map[string]exporterFactory{
	"stdout":   stdoutExporter,
	"otlp":     otlpExporter,
	"otlpgrpc": otlpExporter,
}

// InitTracing installs the global tracer provider and W3C propagators for
// cfg. With tracing disabled a noop provider is installed and the returned
// ShutdownFunc does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (ShutdownFunc, error) {
	log = logging.Subsystem(logging.OrNoop(log), "tracing")

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	factory, ok := spanExporters[strings.ToLower(cfg.Exporter)]
	if !ok {
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
	exp, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "rfsim"),
	))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// samplerFor honours an upstream sampling decision and samples root spans
// by ratio.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func stdoutExporter(_ context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
}

func otlpExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	))
}

// ShutdownWithTimeout gives shutdown five seconds to flush. Failures are
// logged, not returned, since the process is exiting anyway.
func ShutdownWithTimeout(ctx context.Context, shutdown ShutdownFunc, log logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.OrNoop(log).Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
