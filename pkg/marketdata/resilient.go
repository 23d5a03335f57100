package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/irfndi/signalforge-go/internal/logging"
	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/models"
)

// ResilienceConfig tunes retries and the circuit breaker.
type ResilienceConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// ResilientProvider wraps a Provider with a circuit breaker and bounded
// retries with exponential backoff. ErrNoData and client errors neither
// retry nor count against the breaker.
type ResilientProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
	cfg     ResilienceConfig
	metrics *metrics.Registry
	logger  *logging.StandardLogger
}

// NewResilientProvider wraps next. reg may be nil.
func NewResilientProvider(next Provider, cfg ResilienceConfig, reg *metrics.Registry, logger *logrus.Logger) *ResilientProvider {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &ResilientProvider{
		next:    next,
		cfg:     cfg,
		metrics: reg,
		logger:  logging.WrapLogger(logger),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    next.Name(),
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			reg.SetBreakerState(name, int(to))
			p.logger.WithComponent("marketdata").WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Provider circuit breaker state changed")
		},
	})
	return p
}

func (p *ResilientProvider) Name() string { return p.next.Name() }

// State exposes the breaker state for health reporting.
func (p *ResilientProvider) State() gobreaker.State {
	return p.breaker.State()
}

func (p *ResilientProvider) FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.cfg.RetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		start := time.Now()
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.next.FetchBars(ctx, symbol, timeframe, period)
		})
		elapsed := time.Since(start)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}

		var bars []models.Bar
		if out != nil {
			bars = out.([]models.Bar)
		}
		p.metrics.ObserveProvider(p.Name(), elapsed, err)
		p.logger.LogProviderRequest(p.Name(), symbol, len(bars), elapsed.Milliseconds(), err)

		if err == nil {
			return bars, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// countsAsFailure reports whether err indicates an unhealthy provider.
func countsAsFailure(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Temporary()
	}
	return true
}

func retryable(err error) bool {
	return countsAsFailure(err)
}
