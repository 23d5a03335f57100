package telemetry

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/signalforge-go/internal/config"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNormalizeOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hostport string
		urlPath  string
		insecure bool
		wantErr  bool
	}{
		{"http url", "http://localhost:4318", "localhost:4318", "/v1/traces", true, false},
		{"https url with path", "https://collector.example.com/custom/traces/", "collector.example.com", "/custom/traces", false, false},
		{"bare host port", "collector:4318", "collector:4318", "/v1/traces", true, false},
		{"path without scheme", "collector:4318/v1/traces", "", "", false, true},
		{"unsupported scheme", "grpc://collector:4317", "", "", false, true},
		{"empty", "  ", "", "", false, true},
		{"missing host", "http:///v1/traces", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hostport, urlPath, insecure, err := normalizeOTLPEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostport, hostport)
			assert.Equal(t, tt.urlPath, urlPath)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestInitTelemetryDisabled(t *testing.T) {
	p, err := InitTelemetry(context.Background(), config.TelemetryConfig{Enabled: false}, "test", quietLogger())
	require.NoError(t, err)
	assert.Nil(t, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTelemetryStdout(t *testing.T) {
	p, err := InitTelemetry(context.Background(), config.TelemetryConfig{
		Enabled:        true,
		Exporter:       "stdout",
		ServiceName:    "signalforge-test",
		ServiceVersion: "0.0.1",
		SampleRate:     0.5,
	}, "test", quietLogger())
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTelemetryUnknownExporter(t *testing.T) {
	_, err := InitTelemetry(context.Background(), config.TelemetryConfig{Enabled: true, Exporter: "zipkin"}, "test", quietLogger())
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

func TestInitTelemetryInvalidEndpoint(t *testing.T) {
	_, err := InitTelemetry(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		Exporter:     "otlp",
		OTLPEndpoint: "collector:4318/v1/traces",
	}, "test", quietLogger())
	assert.Error(t, err)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 1.0, sampleRate(0))
	assert.Equal(t, 1.0, sampleRate(3))
	assert.Equal(t, 0.25, sampleRate(0.25))
}

func TestShutdownNilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Nil(t, p.TracerProvider())
}

func TestTracerGetters(t *testing.T) {
	assert.NotNil(t, GetTracer("test"))
	assert.NotNil(t, GetHTTPTracer())
	assert.NotNil(t, GetCacheTracer())
	assert.NotNil(t, GetExternalTracer())
	assert.NotNil(t, GetBusinessTracer())
	assert.NotNil(t, GetLogger())
}

func TestEndSpanRecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, ok := StartSpan(context.Background(), tracer, "ok", attribute.String("k", "v"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), tracer, "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("k", "v"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}
