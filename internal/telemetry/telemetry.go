package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/signalforge-go/internal/config"
)

const instrumentationPrefix = "github.com/irfndi/signalforge-go"

// ErrUnknownExporter is returned for exporter names other than stdout, otlp or none.
var ErrUnknownExporter = errors.New("unknown trace exporter")

var (
	mu     sync.RWMutex
	logger = logrus.New()
)

// Provider owns the tracer provider installed by InitTelemetry.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Shutdown flushes pending spans. Safe on a nil or disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// TracerProvider exposes the SDK provider, nil when tracing is disabled.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tp
}

// InitTelemetry builds the tracer provider and installs it globally along
// with the W3C trace-context propagator.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig, environment string, log *logrus.Logger) (*Provider, error) {
	if log != nil {
		mu.Lock()
		logger = log
		mu.Unlock()
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled || cfg.Exporter == "none" {
		GetLogger().Info("Telemetry disabled")
		return &Provider{}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate(cfg.SampleRate)))),
	)
	otel.SetTracerProvider(tp)

	GetLogger().WithFields(logrus.Fields{
		"exporter":    cfg.Exporter,
		"service":     cfg.ServiceName,
		"sample_rate": sampleRate(cfg.SampleRate),
	}).Info("Telemetry initialized")

	return &Provider{tp: tp}, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case "otlp":
		hostport, urlPath, insecure, err := normalizeOTLPEndpoint(cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(hostport),
			otlptracehttp.WithURLPath(urlPath),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
}

// normalizeOTLPEndpoint accepts either a bare host:port or a full URL and
// returns the host:port and path the HTTP exporter expects. Bare host:port
// endpoints are treated as plaintext.
func normalizeOTLPEndpoint(endpoint string) (hostport, urlPath string, insecure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", "", false, errors.New("otlp endpoint is empty")
	}

	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, "/") {
			return "", "", false, fmt.Errorf("otlp endpoint %q has a path but no scheme", endpoint)
		}
		return endpoint, "/v1/traces", true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", false, fmt.Errorf("invalid otlp endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		insecure = true
	case "https":
	default:
		return "", "", false, fmt.Errorf("unsupported otlp scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", false, fmt.Errorf("otlp endpoint %q has no host", endpoint)
	}

	urlPath = strings.TrimRight(u.Path, "/")
	if urlPath == "" {
		urlPath = "/v1/traces"
	}
	return u.Host, urlPath, insecure, nil
}

func sampleRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1
	}
	return rate
}

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + "/" + name)
}

// GetHTTPTracer returns the tracer used by HTTP middleware.
func GetHTTPTracer() trace.Tracer {
	return GetTracer("http")
}

// GetCacheTracer returns the tracer used around Redis operations.
func GetCacheTracer() trace.Tracer {
	return GetTracer("cache")
}

// GetExternalTracer returns the tracer used for market data providers.
func GetExternalTracer() trace.Tracer {
	return GetTracer("external")
}

// GetBusinessTracer returns the tracer used for analysis spans.
func GetBusinessTracer() trace.Tracer {
	return GetTracer("business")
}

// GetLogger returns the logger telemetry reports through.
func GetLogger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// StartSpan starts an internal span with attrs.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
