package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/models"
)

type scriptedProvider struct {
	name  string
	calls atomic.Int32
	errs  []error
	bars  []models.Bar
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error) {
	n := int(p.calls.Add(1)) - 1
	if n < len(p.errs) && p.errs[n] != nil {
		return nil, p.errs[n]
	}
	return p.bars, nil
}

var oneBar = []models.Bar{{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}}

func fastResilience() ResilienceConfig {
	return ResilienceConfig{MaxRetries: 2, RetryBackoff: time.Millisecond, BreakerFailures: 3, BreakerTimeout: time.Hour}
}

func TestResilientProvider_RetriesTemporaryErrors(t *testing.T) {
	reg := metrics.NewRegistry()
	next := &scriptedProvider{
		name: "yahoo",
		errs: []error{&UpstreamError{Provider: "yahoo", StatusCode: 503}, &UpstreamError{Provider: "yahoo", StatusCode: 429}},
		bars: oneBar,
	}
	p := NewResilientProvider(next, fastResilience(), reg, quietLogger())

	bars, err := p.FetchBars(context.Background(), "AAPL", models.Timeframe1d, models.Period1y)
	require.NoError(t, err)
	assert.Equal(t, oneBar, bars)
	assert.Equal(t, int32(3), next.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.ProviderRequests.WithLabelValues("yahoo", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ProviderRequests.WithLabelValues("yahoo", "success")))
}

func TestResilientProvider_DoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no data", ErrNoData},
		{"bad request", &UpstreamError{Provider: "yahoo", StatusCode: 400}},
		{"cancelled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedProvider{name: "yahoo", errs: []error{tt.err}, bars: oneBar}
			p := NewResilientProvider(next, fastResilience(), nil, quietLogger())

			_, err := p.FetchBars(context.Background(), "AAPL", models.Timeframe1d, models.Period1y)
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, int32(1), next.calls.Load())
			assert.Equal(t, gobreaker.StateClosed, p.State())
		})
	}
}

func TestResilientProvider_ExhaustsRetries(t *testing.T) {
	boom := errors.New("connection refused")
	next := &scriptedProvider{name: "yahoo", errs: []error{boom, boom, boom, boom}}
	cfg := fastResilience()
	cfg.BreakerFailures = 10
	p := NewResilientProvider(next, cfg, nil, quietLogger())

	_, err := p.FetchBars(context.Background(), "AAPL", models.Timeframe1d, models.Period1y)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilientProvider_BreakerOpens(t *testing.T) {
	reg := metrics.NewRegistry()
	boom := errors.New("connection refused")
	next := &scriptedProvider{name: "ccxt", errs: []error{boom, boom, boom, boom, boom}}
	p := NewResilientProvider(next, fastResilience(), reg, quietLogger())

	_, err := p.FetchBars(context.Background(), "BTC-USD", models.Timeframe1d, models.Period1y)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.BreakerState.WithLabelValues("ccxt")))

	_, err = p.FetchBars(context.Background(), "BTC-USD", models.Timeframe1d, models.Period1y)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilientProvider_StopsOnContextCancel(t *testing.T) {
	next := &scriptedProvider{name: "yahoo", errs: []error{&UpstreamError{StatusCode: 500}, nil}, bars: oneBar}
	cfg := fastResilience()
	cfg.RetryBackoff = time.Hour
	p := NewResilientProvider(next, cfg, nil, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.FetchBars(ctx, "AAPL", models.Timeframe1d, models.Period1y)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestRouter(t *testing.T) {
	stocks := &scriptedProvider{name: "yahoo", bars: oneBar}
	crypto := &scriptedProvider{name: "ccxt", bars: oneBar}
	r := &Router{Default: stocks, Crypto: crypto}

	_, _ = r.FetchBars(context.Background(), "AAPL", models.Timeframe1d, models.Period1y)
	_, _ = r.FetchBars(context.Background(), "BTC-USD", models.Timeframe1d, models.Period1y)
	_, _ = r.FetchBars(context.Background(), "EUR/USD", models.Timeframe1d, models.Period1y)

	assert.Equal(t, int32(2), stocks.calls.Load())
	assert.Equal(t, int32(1), crypto.calls.Load())
	assert.Equal(t, "yahoo", r.Name())

	r.Crypto = nil
	_, _ = r.FetchBars(context.Background(), "BTC-USD", models.Timeframe1d, models.Period1y)
	assert.Equal(t, int32(3), stocks.calls.Load())
}
