package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
)

// YahooClient reads bars from the Yahoo Finance chart API.
type YahooClient struct {
	req *requester
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// NewYahooClient builds a client from the market data config.
func NewYahooClient(cfg config.MarketDataConfig, logger *logrus.Logger) *YahooClient {
	return &YahooClient{
		req: newRequester("yahoo", cfg.BaseURL,
			config.DurationOr(cfg.Timeout, 15*time.Second), cfg.RequestsPerSecond, cfg.Burst, logger),
	}
}

func (c *YahooClient) Name() string { return "yahoo" }

// FetchBars requests the chart for symbol. Intraday requests are clamped
// to the ranges Yahoo serves.
func (c *YahooClient) FetchBars(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) ([]models.Bar, error) {
	ticker := models.YahooSymbol(symbol)
	query := url.Values{}
	query.Set("interval", string(timeframe))
	query.Set("range", string(models.ClampPeriod(timeframe, period)))
	query.Set("includePrePost", "false")

	var resp chartResponse
	if err := c.req.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), query, &resp, yahooErrorMessage); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, ticker)
	}

	bars := chartBars(resp.Chart.Result[0])
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, ticker)
	}
	return bars, nil
}

// chartBars zips the column arrays into bars, dropping any row with a
// missing price and any timestamp that does not advance.
func chartBars(r chartResult) []models.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	bars := make([]models.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, high, low, cls := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || cls == nil {
			continue
		}
		var volume float64
		if v := at(q.Volume, i); v != nil {
			volume = *v
		}
		t := time.Unix(ts, 0).UTC()
		if n := len(bars); n > 0 && !t.After(bars[n-1].Timestamp) {
			continue
		}
		bars = append(bars, models.Bar{Timestamp: t, Open: *open, High: *high, Low: *low, Close: *cls, Volume: volume})
	}
	return bars
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func yahooErrorMessage(body []byte) string {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Chart.Error == nil {
		return ""
	}
	return resp.Chart.Error.Description
}
