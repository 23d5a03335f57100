// Package marketdata fetches OHLCV bars from upstream providers.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/signalforge-go/internal/models"
)

// ErrNoData is returned when the provider has no bars for the request.
var ErrNoData = errors.New("no market data available")

// ErrCircuitOpen is returned while a provider's breaker is open.
var ErrCircuitOpen = errors.New("market data provider circuit open")

// Provider fetches ascending, complete bars for a symbol.
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error)
}

// UpstreamError is a non-success HTTP response from a provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether retrying could succeed.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

var periodDurations = map[models.Period]time.Duration{
	models.Period1d:  24 * time.Hour,
	models.Period5d:  5 * 24 * time.Hour,
	models.Period1mo: 30 * 24 * time.Hour,
	models.Period3mo: 91 * 24 * time.Hour,
	models.Period6mo: 182 * 24 * time.Hour,
	models.Period1y:  365 * 24 * time.Hour,
	models.Period2y:  2 * 365 * 24 * time.Hour,
	models.Period5y:  5 * 365 * 24 * time.Hour,
}

// barLimit estimates how many bars cover period, capped at max. "max"
// resolves to the cap.
func barLimit(timeframe models.Timeframe, period models.Period, max int) int {
	span, ok := periodDurations[period]
	step := timeframe.Duration()
	if !ok || step <= 0 {
		return max
	}
	n := int(span / step)
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

// Router sends crypto symbols to a dedicated provider when one is set.
type Router struct {
	Default Provider
	Crypto  Provider
}

func (r *Router) Name() string {
	return r.Default.Name()
}

func (r *Router) FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error) {
	return r.route(symbol).FetchBars(ctx, symbol, timeframe, period)
}

func (r *Router) route(symbol string) Provider {
	if r.Crypto != nil && models.DetectInstrumentClass(symbol) == models.InstrumentCrypto {
		return r.Crypto
	}
	return r.Default
}
