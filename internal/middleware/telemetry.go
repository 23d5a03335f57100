package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/signalforge-go/internal/telemetry"
)

// Package middleware provides request ID, access logging, admin
// authentication and tracing middleware for the HTTP API.

var skipTracing = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// TelemetryMiddleware enriches the server span opened by otelgin with the
// request ID and response details. When no span is active (otelgin not
// installed) it opens its own.
func TelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipTracing[c.Request.URL.Path] {
			c.Next()
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		if !span.SpanContext().IsValid() {
			ctx, own := telemetry.GetHTTPTracer().Start(
				c.Request.Context(),
				fmt.Sprintf("HTTP %s %s", c.Request.Method, c.Request.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer own.End()
			c.Request = c.Request.WithContext(ctx)
			span = own
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}
		if route := c.FullPath(); route != "" {
			span.SetAttributes(attribute.String("http.route", route))
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", statusCode),
			attribute.Int64("http.response.time_ms", time.Since(start).Milliseconds()),
			attribute.Int64("http.response.size_bytes", int64(c.Writer.Size())),
		)
		if statusCode >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		}
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}
