package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
)

const ccxtMaxBars = 1000

// CCXTClient reads crypto bars from a CCXT bridge service.
type CCXTClient struct {
	req      *requester
	exchange string
}

// OHLCV is one candle as returned by the bridge.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// OHLCVResponse is the bridge's OHLCV payload.
type OHLCVResponse struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	OHLCV     []OHLCV `json:"ohlcv"`
	Timestamp string  `json:"timestamp"`
}

// HealthResponse is the bridge's health payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type ccxtError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewCCXTClient builds a client, or nil when no service URL is configured.
func NewCCXTClient(cfg config.CCXTConfig, rps float64, logger *logrus.Logger) *CCXTClient {
	if cfg.GetServiceURL() == "" {
		return nil
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "binance"
	}
	return &CCXTClient{
		req:      newRequester("ccxt", cfg.GetServiceURL(), time.Duration(cfg.GetTimeout())*time.Second, rps, 1, logger),
		exchange: exchange,
	}
}

func (c *CCXTClient) Name() string { return "ccxt" }

// HealthCheck checks if the CCXT service is healthy
func (c *CCXTClient) HealthCheck(ctx context.Context) error {
	var resp HealthResponse
	if err := c.req.getJSON(ctx, "/health", nil, &resp, ccxtErrorMessage); err != nil {
		return err
	}
	if resp.Status != "ok" && resp.Status != "healthy" {
		return fmt.Errorf("ccxt service status %q", resp.Status)
	}
	return nil
}

// FetchBars requests enough candles to cover period.
func (c *CCXTClient) FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error) {
	pair := CCXTSymbol(symbol)
	query := url.Values{}
	query.Set("timeframe", ccxtTimeframe(timeframe))
	query.Set("limit", strconv.Itoa(barLimit(timeframe, period, ccxtMaxBars)))

	var resp OHLCVResponse
	path := fmt.Sprintf("/api/ohlcv/%s/%s", c.exchange, url.PathEscape(pair))
	if err := c.req.getJSON(ctx, path, query, &resp, ccxtErrorMessage); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(resp.OHLCV))
	for _, o := range resp.OHLCV {
		t := o.Timestamp.UTC()
		if n := len(bars); n > 0 && !t.After(bars[n-1].Timestamp) {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: t,
			Open:      o.Open.InexactFloat64(),
			High:      o.High.InexactFloat64(),
			Low:       o.Low.InexactFloat64(),
			Close:     o.Close.InexactFloat64(),
			Volume:    o.Volume.InexactFloat64(),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s on %s", ErrNoData, pair, c.exchange)
	}
	return bars, nil
}

// CCXTSymbol converts BTC-USD style tickers to unified CCXT pairs. USD
// quotes map to USDT, which is what the spot exchanges list.
func CCXTSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	base, quote, ok := strings.Cut(s, "-")
	if !ok {
		return s
	}
	if quote == "USD" {
		quote = "USDT"
	}
	return base + "/" + quote
}

func ccxtTimeframe(tf models.Timeframe) string {
	switch tf {
	case models.Timeframe1wk:
		return "1w"
	case models.Timeframe1mo:
		return "1M"
	}
	return string(tf)
}

func ccxtErrorMessage(body []byte) string {
	var e ccxtError
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Message != "" {
		return e.Error + ": " + e.Message
	}
	return e.Error
}
