package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/log"
)

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogrusLevel(tt.input))
		})
	}
}

func TestNewLogger_Formatter(t *testing.T) {
	prod := NewLogger("debug", "production")
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Formatter)
	assert.Equal(t, logrus.DebugLevel, prod.GetLevel())

	dev := NewLogger("info", "development")
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)
}

func captured(t *testing.T) (*StandardLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return WrapLogger(logger), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestStandardLogger_Fields(t *testing.T) {
	l, buf := captured(t)

	l.WithSymbol("AAPL").Info("hello")
	entry := decode(t, buf)
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, "hello", entry["msg"])

	buf.Reset()
	l.LogStartup("signalforge", "1.2.3", 8080)
	entry = decode(t, buf)
	assert.Equal(t, "startup", entry["event"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, float64(8080), entry["port"])

	buf.Reset()
	l.LogCacheOperation("get", "bars:AAPL:1d:1y", true, 3)
	entry = decode(t, buf)
	assert.Equal(t, true, entry["hit"])
	assert.Equal(t, "debug", entry["level"])
}

func TestStandardLogger_APIRequestLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "info"},
		{404, "warning"},
		{502, "error"},
	}
	for _, tt := range tests {
		l, buf := captured(t)
		l.LogAPIRequest("GET", "/api/v1/analyze/AAPL", tt.status, 12, "req-1")
		entry := decode(t, buf)
		assert.Equal(t, tt.level, entry["level"])
		assert.Equal(t, "req-1", entry["request_id"])
	}
}

func TestStandardLogger_ProviderRequestError(t *testing.T) {
	l, buf := captured(t)
	l.LogProviderRequest("yahoo", "AAPL", 0, 250, errors.New("upstream 503"))
	entry := decode(t, buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "upstream 503", entry["error"])
}

type recordingExporter struct {
	mu      sync.Mutex
	records []log.Record
}

func (e *recordingExporter) Export(_ context.Context, records []log.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestOTLPHook_EmitsRecords(t *testing.T) {
	exporter := &recordingExporter{}
	provider := log.NewLoggerProvider(log.WithProcessor(log.NewSimpleProcessor(exporter)))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.AddHook(NewOTLPHook(provider.Logger("test"), logrus.InfoLevel))

	logger.WithFields(logrus.Fields{"symbol": "EURUSD=X", "bars": 120}).Warn("Analysis degraded")
	logger.Debug("filtered out")

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	require.Len(t, exporter.records, 1)

	record := exporter.records[0]
	assert.Equal(t, "Analysis degraded", record.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, record.Severity())

	attrs := map[string]otellog.Value{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	assert.Equal(t, "EURUSD=X", attrs["symbol"].AsString())
	assert.Equal(t, int64(120), attrs["bars"].AsInt64())
}

func TestOTLPHook_Levels(t *testing.T) {
	hook := NewOTLPHook(nil, logrus.WarnLevel)
	assert.ElementsMatch(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}, hook.Levels())
}

func TestNewOTLPLogger_Disabled(t *testing.T) {
	l, err := NewOTLPLogger(OTLPConfig{Enabled: false})
	require.NoError(t, err)

	logger := logrus.New()
	l.Attach(logger)
	assert.Empty(t, logger.Hooks)
	assert.NoError(t, l.Shutdown(context.Background()))
}

func TestConvertLogrusLevelToSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityDebug, convertLogrusLevelToSeverity(logrus.DebugLevel))
	assert.Equal(t, otellog.SeverityError, convertLogrusLevelToSeverity(logrus.ErrorLevel))
	assert.Equal(t, otellog.SeverityFatal, convertLogrusLevelToSeverity(logrus.PanicLevel))
}
