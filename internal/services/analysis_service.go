package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/cache"
	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/telemetry"
	"github.com/irfndi/signalforge-go/internal/utils"
	"github.com/irfndi/signalforge-go/pkg/marketdata"
)

// ErrCacheDisabled is returned by cache operations when no cache is wired.
var ErrCacheDisabled = errors.New("bar cache is not configured")

// BarStore caches provider responses.
type BarStore interface {
	Get(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) (*cache.BarCacheEntry, bool)
	Set(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period, provider string, bars []models.Bar) error
	Invalidate(ctx context.Context, symbol string) (int64, error)
	GetStats() cache.BarCacheStats
}

// CacheStats reports bar cache effectiveness since startup.
type CacheStats struct {
	cache.BarCacheStats
	HitRate float64 `json:"hit_rate"`
}

// AnalysisRequest is an analysis of a ticker whose bars still need fetching.
type AnalysisRequest struct {
	Symbol                 string
	Timeframe              string
	Period                 string
	Capital                float64
	RiskPercent            float64
	MaxPositionSizePercent float64
	// Instrument is detected from the symbol when empty.
	Instrument string
	Params     *config.AnalysisConfig
	// Refresh bypasses the cache read; the fresh bars are still stored.
	Refresh bool
}

// AnalysisResponse wraps a result with request metadata.
type AnalysisResponse struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	DataSource  string    `json:"data_source"`
	DataCached  bool      `json:"data_cached"`
	*AnalysisResult
}

// MarketDataResponse is the bar series behind an analysis.
type MarketDataResponse struct {
	Symbol     string                 `json:"symbol"`
	Instrument models.InstrumentClass `json:"instrument_class"`
	Timeframe  models.Timeframe       `json:"timeframe"`
	Period     models.Period          `json:"period"`
	DataSource string                 `json:"data_source"`
	DataCached bool                   `json:"data_cached"`
	LastPrice  float64                `json:"last_price"`
	Change     float64                `json:"change"`
	ChangePct  float64                `json:"change_percent"`
	Bars       []models.Bar           `json:"bars"`
}

// AnalysisService fetches bars, through the cache when one is set, and
// runs the Analyzer over them.
type AnalysisService struct {
	analyzer *Analyzer
	provider marketdata.Provider
	cache    BarStore
	metrics  *metrics.Registry
	tracer   *telemetry.BusinessTracer
	logger   *logrus.Logger
}

// NewAnalysisService wires the service. store and reg may be nil.
func NewAnalysisService(analyzer *Analyzer, provider marketdata.Provider, store BarStore, reg *metrics.Registry, logger *logrus.Logger) *AnalysisService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalysisService{
		analyzer: analyzer,
		provider: provider,
		cache:    store,
		metrics:  reg,
		tracer:   telemetry.NewBusinessTracer(nil),
		logger:   logger,
	}
}

type seriesRequest struct {
	symbol    string
	timeframe models.Timeframe
	period    models.Period
}

func parseSeries(symbol, timeframe, period string) (seriesRequest, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return seriesRequest{}, utils.NewValidationError("symbol is required")
	}
	if timeframe == "" {
		timeframe = string(models.Timeframe1d)
	}
	if period == "" {
		period = string(models.Period1y)
	}
	tf, err := models.ParseTimeframe(timeframe)
	if err != nil {
		return seriesRequest{}, utils.NewValidationError(err.Error())
	}
	p, err := models.ParsePeriod(period)
	if err != nil {
		return seriesRequest{}, utils.NewValidationError(err.Error())
	}
	return seriesRequest{symbol: symbol, timeframe: tf, period: models.ClampPeriod(tf, p)}, nil
}

// Analyze fetches bars for req.Symbol and runs the pipeline. Validation
// failures are *utils.ValidationError; fetch failures come from the
// marketdata package.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	series, err := parseSeries(req.Symbol, req.Timeframe, req.Period)
	if err != nil {
		s.metrics.ObserveAnalysisError("validation")
		return nil, err
	}

	instrument := models.DetectInstrumentClass(series.symbol)
	if req.Instrument != "" {
		if instrument, err = models.ParseInstrumentClass(req.Instrument); err != nil {
			s.metrics.ObserveAnalysisError("validation")
			return nil, utils.NewValidationError(err.Error())
		}
	}

	ctx, span := s.tracer.TraceAnalysis(ctx, series.symbol, string(series.timeframe), string(instrument))
	defer span.End()

	bars, source, cached, err := s.fetch(ctx, series, req.Refresh)
	if err != nil {
		s.metrics.ObserveAnalysisError("fetch")
		telemetry.EndSpan(span, err)
		return nil, err
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(AnalysisInput{
		Symbol:                 series.symbol,
		Timeframe:              series.timeframe,
		Period:                 series.period,
		Bars:                   bars,
		Capital:                req.Capital,
		RiskPercent:            req.RiskPercent,
		MaxPositionSizePercent: req.MaxPositionSizePercent,
		Instrument:             instrument,
		Params:                 req.Params,
	})
	if err != nil {
		s.metrics.ObserveAnalysisError("validation")
		telemetry.EndSpan(span, err)
		return nil, err
	}

	capitalError := ""
	if eff := result.CapitalPlan.CapitalEfficiency; eff != nil && eff.Error != nil {
		capitalError = *eff.Error
	}
	s.metrics.ObserveAnalysis(string(instrument), string(result.Signals.ValidatedSignal), time.Since(start), capitalError != "")
	s.tracer.RecordAnalysisResult(span, telemetry.AnalysisSummary{
		Signal:          string(result.Signals.Signal),
		ValidatedSignal: string(result.Signals.ValidatedSignal),
		Confidence:      result.Signals.AdjustedConfidence,
		Regime:          string(result.Regime.Type),
		Direction:       string(result.Regime.Direction),
		Volatility:      string(result.Regime.Volatility),
		BarCount:        result.Indicators.BarCount,
		Warnings:        result.Signals.WarningFlags,
		PositionSizeUSD: result.CapitalPlan.PositionSizeUSD,
		CapitalError:    capitalError,
	})

	return &AnalysisResponse{
		ID:             uuid.NewString(),
		GeneratedAt:    time.Now().UTC(),
		DataSource:     source,
		DataCached:     cached,
		AnalysisResult: result,
	}, nil
}

// MarketData returns the bars Analyze would use for the same request.
func (s *AnalysisService) MarketData(ctx context.Context, symbol, timeframe, period string) (*MarketDataResponse, error) {
	series, err := parseSeries(symbol, timeframe, period)
	if err != nil {
		return nil, err
	}
	bars, source, cached, err := s.fetch(ctx, series, false)
	if err != nil {
		return nil, err
	}

	resp := &MarketDataResponse{
		Symbol:     series.symbol,
		Instrument: models.DetectInstrumentClass(series.symbol),
		Timeframe:  series.timeframe,
		Period:     series.period,
		DataSource: source,
		DataCached: cached,
		Bars:       bars,
	}
	last := bars[len(bars)-1].Close
	resp.LastPrice = last
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		resp.Change = last - prev
		if v, err := safeDivide(resp.Change, prev, "previous close"); err == nil {
			resp.ChangePct = v * 100
		}
	}
	return resp, nil
}

// InvalidateCache drops every cached series for symbol.
func (s *AnalysisService) InvalidateCache(ctx context.Context, symbol string) (int64, error) {
	if s.cache == nil {
		return 0, ErrCacheDisabled
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return 0, utils.NewValidationError("symbol is required")
	}
	return s.cache.Invalidate(ctx, symbol)
}

// CacheStats returns the bar cache counters.
func (s *AnalysisService) CacheStats() (*CacheStats, error) {
	if s.cache == nil {
		return nil, ErrCacheDisabled
	}
	stats := s.cache.GetStats()
	return &CacheStats{BarCacheStats: stats, HitRate: stats.HitRate()}, nil
}

func (s *AnalysisService) fetch(ctx context.Context, series seriesRequest, refresh bool) ([]models.Bar, string, bool, error) {
	ctx, span := s.tracer.TraceMarketDataFetch(ctx, series.symbol, string(series.timeframe), string(series.period))
	defer span.End()

	if s.cache != nil && !refresh {
		if entry, ok := s.cache.Get(ctx, series.symbol, series.timeframe, series.period); ok && len(entry.Bars) > 0 {
			s.tracer.RecordMarketData(span, telemetry.MarketDataSummary{Provider: entry.Provider, Bars: len(entry.Bars), CacheHit: true})
			return entry.Bars, entry.Provider, true, nil
		}
	}

	bars, err := s.provider.FetchBars(ctx, series.symbol, series.timeframe, series.period)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"symbol":    series.symbol,
			"timeframe": series.timeframe,
			"period":    series.period,
			"provider":  s.provider.Name(),
		}).WithError(err).Warn("Failed to fetch market data")
		span.RecordError(err)
		return nil, "", false, err
	}
	if err := models.ValidateBars(bars); err != nil {
		if errors.Is(err, models.ErrEmptyBars) {
			return nil, "", false, fmt.Errorf("%w for %s", marketdata.ErrNoData, series.symbol)
		}
		span.RecordError(err)
		return nil, "", false, &marketdata.UpstreamError{
			Provider:   s.provider.Name(),
			StatusCode: http.StatusBadGateway,
			Message:    "malformed bars: " + err.Error(),
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, series.symbol, series.timeframe, series.period, s.provider.Name(), bars); err != nil {
			s.logger.WithError(err).WithField("symbol", series.symbol).Warn("Failed to cache market data")
		}
	}

	s.tracer.RecordMarketData(span, telemetry.MarketDataSummary{Provider: s.provider.Name(), Bars: len(bars)})
	return bars, s.provider.Name(), false, nil
}
