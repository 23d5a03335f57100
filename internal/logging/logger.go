package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// StandardLogger applies the field names shared by every component so log
// queries work the same across the server, the CLI and the pipeline.
type StandardLogger struct {
	logger *logrus.Logger
}

// NewLogger builds a logrus logger for the environment. Production writes
// JSON; everything else writes human readable text.
func NewLogger(logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(ParseLogrusLevel(logLevel))

	if strings.EqualFold(environment, "production") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger
}

// NewStandardLogger creates a new standardized logger based on configuration
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return &StandardLogger{logger: NewLogger(logLevel, environment)}
}

// WrapLogger adopts an existing logrus logger.
func WrapLogger(logger *logrus.Logger) *StandardLogger {
	if logger == nil {
		logger = logrus.New()
	}
	return &StandardLogger{logger: logger}
}

// Logger returns the underlying *logrus.Logger
func (l *StandardLogger) Logger() *logrus.Logger {
	return l.logger
}

// WithService creates a logger with service context
func (l *StandardLogger) WithService(serviceName string) *logrus.Entry {
	return l.logger.WithField("service", serviceName)
}

// WithComponent creates a logger with component context
func (l *StandardLogger) WithComponent(componentName string) *logrus.Entry {
	return l.logger.WithField("component", componentName)
}

// WithOperation creates a logger with operation context
func (l *StandardLogger) WithOperation(operationName string) *logrus.Entry {
	return l.logger.WithField("operation", operationName)
}

// WithRequestID creates a logger with request ID context
func (l *StandardLogger) WithRequestID(requestID string) *logrus.Entry {
	return l.logger.WithField("request_id", requestID)
}

// WithSymbol creates a logger with symbol context
func (l *StandardLogger) WithSymbol(symbol string) *logrus.Entry {
	return l.logger.WithField("symbol", symbol)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.WithFields(logrus.Fields{
		"event":   "startup",
		"service": serviceName,
		"version": version,
		"port":    port,
	}).Info("Service starting")
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.WithFields(logrus.Fields{
		"event":   "shutdown",
		"service": serviceName,
		"reason":  reason,
	}).Info("Service shutting down")
}

// LogResourceStats logs process resource usage.
func (l *StandardLogger) LogResourceStats(serviceName string, stats map[string]interface{}) {
	fields := logrus.Fields{"event": "resource_stats", "service": serviceName}
	for k, v := range stats {
		fields[k] = v
	}
	l.logger.WithFields(fields).Info("Resource statistics")
}

// LogCacheOperation logs bar cache lookups.
func (l *StandardLogger) LogCacheOperation(operation string, key string, hit bool, duration int64) {
	l.logger.WithFields(logrus.Fields{
		"event":       "cache_operation",
		"operation":   operation,
		"key":         key,
		"hit":         hit,
		"duration_ms": duration,
	}).Debug("Cache operation")
}

// LogProviderRequest logs one upstream market data call.
func (l *StandardLogger) LogProviderRequest(provider string, symbol string, bars int, duration int64, err error) {
	entry := l.logger.WithFields(logrus.Fields{
		"event":       "provider_request",
		"provider":    provider,
		"symbol":      symbol,
		"bars":        bars,
		"duration_ms": duration,
	})
	if err != nil {
		entry.WithError(err).Warn("Market data request failed")
		return
	}
	entry.Debug("Market data request")
}

// LogAPIRequest logs API requests in a standardized format
func (l *StandardLogger) LogAPIRequest(method string, path string, statusCode int, duration int64, requestID string) {
	entry := l.logger.WithFields(logrus.Fields{
		"event":       "api_request",
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration,
		"request_id":  requestID,
	})
	switch {
	case statusCode >= 500:
		entry.Error("API request")
	case statusCode >= 400:
		entry.Warn("API request")
	default:
		entry.Info("API request")
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
