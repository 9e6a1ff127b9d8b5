package tracing

import (
	"context"
	"fmt"
	"os"

	"github.com/danthegoodman1/Provisio/gologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "provisio"

var (
	// Tracer delegates to whatever provider InitTracer installs, noop until then.
	Tracer = otel.Tracer(ServiceName)
	logger = gologger.NewLogger()

	Env_Tracing      = os.Getenv("TRACING")
	Env_OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
)

// InitTracer installs the global tracer provider selected by TRACING (stdout or otlp).
// The returned func flushes and shuts the provider down.
func InitTracer(ctx context.Context) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch Env_Tracing {
	case "":
		logger.Debug().Msg("tracing disabled")
		return func(context.Context) error { return nil }, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if Env_OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(Env_OTLPEndpoint))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown TRACING exporter %q", Env_Tracing)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s exporter: %w", Env_Tracing, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
	)
	otel.SetTracerProvider(tp)
	logger.Debug().Str("exporter", Env_Tracing).Msg("tracing enabled")
	return tp.Shutdown, nil
}
