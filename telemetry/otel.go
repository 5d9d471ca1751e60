package telemetry

import (
	"context"
	"net/url"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const exportTimeout = 10 * time.Second

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func()

// Config describes where telemetry is shipped.
type Config struct {
	// URL is the OTLP/HTTP collector base URL. Logs go to /v1/logs and
	// spans to /v1/traces.
	URL         string
	AuthToken   string
	ServiceName string
	// Level is the minimum level forwarded to the collector.
	Level logger.LogLevel
	// Log receives setup warnings, such as resource attributes that could
	// not be detected. Optional.
	Log logger.Logger
}

func endpoint(base *url.URL, path string) string {
	u := *base
	u.Path = path
	return u.String()
}

// New installs a global tracer provider that exports the spans recorded by
// the store (see kv.WithTracing) and returns a logger that ships records to
// the same collector.
func New(ctx context.Context, cfg Config) (logger.Logger, ShutdownFunc, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "telemetry: parsing collector url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, nil, errors.Newf("telemetry: unsupported collector scheme %q", base.Scheme)
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		if cfg.Log != nil {
			cfg.Log.Warn("telemetry: incomplete resource: %s", err)
		}
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "telemetry: creating resource")
	}

	headers := make(map[string]string)
	if cfg.AuthToken != "" {
		headers["Authorization"] = "Bearer " + cfg.AuthToken
	}
	insecure := base.Scheme == "http"

	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(endpoint(base, "/v1/logs")),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(exportTimeout),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(endpoint(base, "/v1/traces")),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "telemetry: creating log exporter")
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "telemetry: creating trace exporter")
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(traceProvider)

	log := logger.NewOtelLogger(logProvider.Logger(cfg.ServiceName), cfg.Level)

	return log, func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		traceProvider.Shutdown(ctx)
		logProvider.Shutdown(ctx)
	}, nil
}
