package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*BusinessTracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewBusinessTracer(tp.Tracer("business")), recorder
}

func TestBusinessTracer_TraceAnalysis(t *testing.T) {
	bt, recorder := newRecordingTracer()

	size := 2500.0
	_, span := bt.TraceAnalysis(context.Background(), "AAPL", "1d", "equity")
	bt.RecordAnalysisResult(span, AnalysisSummary{
		Signal:          "STRONG_BUY",
		ValidatedSignal: "BUY",
		Confidence:      0.64,
		Regime:          "volatile",
		Direction:       "up",
		Volatility:      "high",
		BarCount:        250,
		Warnings:        []string{"HIGH_VOLATILITY"},
		PositionSizeUSD: &size,
	})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "analysis.run", spans[0].Name())

	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String("analysis.symbol", "AAPL"))
	assert.Contains(t, attrs, attribute.String("signal.validated", "BUY"))
	assert.Contains(t, attrs, attribute.Int("analysis.bar_count", 250))
	assert.Contains(t, attrs, attribute.StringSlice("signal.warnings", []string{"HIGH_VOLATILITY"}))
	assert.Contains(t, attrs, attribute.Float64("capital.position_size_usd", 2500))
	for _, kv := range attrs {
		assert.NotEqual(t, attribute.Key("capital.error"), kv.Key)
	}
}

func TestBusinessTracer_CapitalError(t *testing.T) {
	bt, recorder := newRecordingTracer()

	_, span := bt.TraceAnalysis(context.Background(), "FLAT", "1d", "equity")
	bt.RecordAnalysisResult(span, AnalysisSummary{ValidatedSignal: "NEUTRAL", CapitalError: "no stop loss"})
	span.End()

	attrs := recorder.Ended()[0].Attributes()
	assert.Contains(t, attrs, attribute.String("capital.error", "no stop loss"))
}

func TestBusinessTracer_MarketData(t *testing.T) {
	bt, recorder := newRecordingTracer()

	_, span := bt.TraceMarketDataFetch(context.Background(), "EURUSD=X", "1h", "1mo")
	bt.RecordMarketData(span, MarketDataSummary{Provider: "yahoo", Bars: 480, CacheHit: true})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "market_data.fetch", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("market_data.cache_hit", true))
	assert.Contains(t, spans[0].Attributes(), attribute.String("market_data.period", "1mo"))
}

func TestNewBusinessTracerDefaultsToGlobal(t *testing.T) {
	assert.NotNil(t, NewBusinessTracer(nil).tracer)
}
