package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/middleware"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/services"
	"github.com/irfndi/signalforge-go/internal/utils"
)

// AnalysisService is the part of services.AnalysisService the HTTP layer uses.
type AnalysisService interface {
	Analyze(ctx context.Context, req services.AnalysisRequest) (*services.AnalysisResponse, error)
	MarketData(ctx context.Context, symbol, timeframe, period string) (*services.MarketDataResponse, error)
	InvalidateCache(ctx context.Context, symbol string) (int64, error)
	CacheStats() (*services.CacheStats, error)
}

type AnalysisHandler struct {
	service  AnalysisService
	defaults config.CapitalConfig
	logger   *logrus.Logger
}

// AnalyzeParams are accepted from the query string and, for POST, from a
// JSON body whose fields override the query.
type AnalyzeParams struct {
	Timeframe          string                 `form:"timeframe" json:"timeframe"`
	Period             string                 `form:"period" json:"period"`
	Capital            float64                `form:"capital" json:"capital"`
	RiskPercent        float64                `form:"risk_percent" json:"risk_percent"`
	MaxPositionPercent float64                `form:"max_position_percent" json:"max_position_percent"`
	Instrument         string                 `form:"instrument" json:"instrument"`
	Refresh            bool                   `form:"refresh" json:"refresh"`
	Params             *config.AnalysisConfig `form:"-" json:"params,omitempty"`
}

func NewAnalysisHandler(service AnalysisService, defaults config.CapitalConfig, logger *logrus.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalysisHandler{service: service, defaults: defaults, logger: logger}
}

// Analyze runs the full pipeline for :ticker.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	h.analyze(c, c.Param("ticker"), "")
}

// AnalyzeForex runs the pipeline for a currency pair given as EURUSD,
// EUR-USD or EUR_USD. The capital plan carries lots and pip value.
func (h *AnalysisHandler) AnalyzeForex(c *gin.Context) {
	pair, ok := normalizePair(c.Param("pair"))
	if !ok {
		respondError(c, utils.NewValidationErrorf("invalid currency pair %q", c.Param("pair")))
		return
	}
	h.analyze(c, pair, models.InstrumentForex)
}

func (h *AnalysisHandler) analyze(c *gin.Context, ticker string, instrument models.InstrumentClass) {
	params, err := h.bindParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if instrument != "" {
		params.Instrument = string(instrument)
	}

	middleware.AddSpanAttribute(c, "analysis.ticker", strings.ToUpper(ticker))

	resp, err := h.service.Analyze(c.Request.Context(), services.AnalysisRequest{
		Symbol:                 ticker,
		Timeframe:              params.Timeframe,
		Period:                 params.Period,
		Capital:                params.Capital,
		RiskPercent:            params.RiskPercent,
		MaxPositionSizePercent: params.MaxPositionPercent,
		Instrument:             params.Instrument,
		Params:                 params.Params,
		Refresh:                params.Refresh,
	})
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"ticker":     ticker,
			"request_id": middleware.GetRequestID(c),
		}).WithError(err).Warn("Analysis failed")
		respondError(c, err)
		return
	}

	middleware.AddSpanAttribute(c, "analysis.id", resp.ID)
	c.JSON(http.StatusOK, resp)
}

func (h *AnalysisHandler) bindParams(c *gin.Context) (AnalyzeParams, error) {
	var params AnalyzeParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return params, utils.NewValidationErrorf("invalid query parameters: %v", err)
	}
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			return params, utils.NewValidationErrorf("invalid request body: %v", err)
		}
	}

	if params.Capital == 0 {
		params.Capital = h.defaults.DefaultCapital
	}
	if params.RiskPercent == 0 {
		params.RiskPercent = h.defaults.DefaultRiskPercent
	}
	if h.defaults.MaxRiskPercent > 0 && params.RiskPercent > h.defaults.MaxRiskPercent {
		return params, utils.NewValidationError("risk_percent exceeds the configured maximum", "risk_percent")
	}
	return params, nil
}

// normalizePair turns path-safe pair notations into EUR/USD.
func normalizePair(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "=X")
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	if len(s) != 6 {
		return "", false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return s[:3] + "/" + s[3:], true
}
