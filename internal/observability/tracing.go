package observability

import (
	"context"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tyler180/espn-league-backend/internal/config"
	"github.com/tyler180/espn-league-backend/internal/logging"
)

// Tracing owns the process TracerProvider. A nil Tracing, or one built while
// export was disabled, leaves the global provider in place and does nothing.
type Tracing struct {
	provider trace.TracerProvider
	flush    func(context.Context) error
	shutdown func(context.Context) error
}

// InitTracing configures global OpenTelemetry tracing. UPTRACE_DSN selects
// the Uptrace distro; otherwise an OTLP endpoint selects a plain OTLP/HTTP
// exporter, which reads the standard OTEL_EXPORTER_OTLP_* variables itself.
// With neither set tracing stays a no-op.
func InitTracing(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Tracing, error) {
	if logger == nil {
		logger = logging.Default()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultServiceName
	}

	if dsn := strings.TrimSpace(cfg.UptraceDSN); dsn != "" {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(dsn),
			uptrace.WithServiceName(serviceName),
			uptrace.WithMetricsEnabled(false),
			uptrace.WithLoggingEnabled(false),
		)
		logger.Info("tracing enabled", "exporter", "uptrace", "service_name", serviceName)
		return &Tracing{
			provider: otel.GetTracerProvider(),
			flush:    uptrace.ForceFlush,
			shutdown: uptrace.Shutdown,
		}, nil
	}

	if strings.TrimSpace(cfg.OTLPEndpoint) == "" {
		logger.Info("tracing disabled", "reason", "UPTRACE_DSN and OTEL_EXPORTER_OTLP_ENDPOINT empty")
		return &Tracing{}, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return &Tracing{}, crerr.Wrap(err, "create otlp trace exporter")
	}
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return &Tracing{}, crerr.Wrap(err, "build trace resource")
	}

	t := NewTracing(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	t.Install()

	logger.Info("tracing enabled",
		"exporter", "otlphttp",
		"service_name", serviceName,
		"endpoint", cfg.OTLPEndpoint,
	)
	return t, nil
}

// NewTracing builds an SDK provider without touching the globals.
func NewTracing(opts ...sdktrace.TracerProviderOption) *Tracing {
	tp := sdktrace.NewTracerProvider(opts...)
	return &Tracing{provider: tp, flush: tp.ForceFlush, shutdown: tp.Shutdown}
}

// Install makes t the global provider and enables W3C trace context and
// baggage propagation.
func (t *Tracing) Install() {
	if t == nil || t.provider == nil {
		return
	}
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func (t *Tracing) TracerProvider() trace.TracerProvider {
	if t == nil || t.provider == nil {
		return otel.GetTracerProvider()
	}
	return t.provider
}

// Flush exports buffered spans. Lambda freezes the process between
// invocations, so call it before returning a response.
func (t *Tracing) Flush(ctx context.Context) error {
	if t == nil || t.flush == nil {
		return nil
	}
	return crerr.Wrap(t.flush(ctx), "flush spans")
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return crerr.Wrap(t.shutdown(ctx), "shutdown tracer provider")
}
