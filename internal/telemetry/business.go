package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer opens spans for the analysis domain.
type BusinessTracer struct {
	tracer trace.Tracer
}

// AnalysisSummary is the slice of an analysis result recorded on a span.
type AnalysisSummary struct {
	Signal          string
	ValidatedSignal string
	Confidence      float64
	Regime          string
	Direction       string
	Volatility      string
	BarCount        int
	Warnings        []string
	PositionSizeUSD *float64
	CapitalError    string
}

// MarketDataSummary describes a completed bar fetch.
type MarketDataSummary struct {
	Provider string
	Bars     int
	CacheHit bool
}

// NewBusinessTracer uses tracer, or the global business tracer when nil.
func NewBusinessTracer(tracer trace.Tracer) *BusinessTracer {
	if tracer == nil {
		tracer = GetBusinessTracer()
	}
	return &BusinessTracer{tracer: tracer}
}

// TraceAnalysis starts a span covering one analyze call.
func (bt *BusinessTracer) TraceAnalysis(ctx context.Context, symbol, timeframe, instrument string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("analysis.symbol", symbol),
		attribute.String("analysis.timeframe", timeframe),
		attribute.String("analysis.instrument", instrument),
	))
}

// RecordAnalysisResult attaches the outcome of an analysis to span.
func (bt *BusinessTracer) RecordAnalysisResult(span trace.Span, s AnalysisSummary) {
	attrs := []attribute.KeyValue{
		attribute.String("signal.raw", s.Signal),
		attribute.String("signal.validated", s.ValidatedSignal),
		attribute.Float64("signal.confidence", s.Confidence),
		attribute.String("regime.type", s.Regime),
		attribute.String("regime.direction", s.Direction),
		attribute.String("regime.volatility", s.Volatility),
		attribute.Int("analysis.bar_count", s.BarCount),
	}
	if len(s.Warnings) > 0 {
		attrs = append(attrs, attribute.StringSlice("signal.warnings", s.Warnings))
	}
	if s.PositionSizeUSD != nil {
		attrs = append(attrs, attribute.Float64("capital.position_size_usd", *s.PositionSizeUSD))
	}
	if s.CapitalError != "" {
		attrs = append(attrs, attribute.String("capital.error", s.CapitalError))
	}
	span.SetAttributes(attrs...)
}

// TraceMarketDataFetch starts a span around a bar fetch.
func (bt *BusinessTracer) TraceMarketDataFetch(ctx context.Context, symbol, timeframe, period string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "market_data.fetch", trace.WithAttributes(
		attribute.String("market_data.symbol", symbol),
		attribute.String("market_data.timeframe", timeframe),
		attribute.String("market_data.period", period),
	))
}

// RecordMarketData attaches fetch results to span.
func (bt *BusinessTracer) RecordMarketData(span trace.Span, s MarketDataSummary) {
	span.SetAttributes(
		attribute.String("market_data.provider", s.Provider),
		attribute.Int("market_data.bars", s.Bars),
		attribute.Bool("market_data.cache_hit", s.CacheHit),
	)
}
