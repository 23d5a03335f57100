package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/signalforge-go/internal/models"
)

type MarketHandler struct {
	service    AnalysisService
	catalog    models.SymbolCatalog
	categories map[string][]models.SymbolInfo
}

func NewMarketHandler(service AnalysisService, catalog models.SymbolCatalog) *MarketHandler {
	return &MarketHandler{
		service: service,
		catalog: catalog,
		categories: map[string][]models.SymbolInfo{
			"forex":         catalog.Forex,
			"indices":       catalog.Indices,
			"indian-stocks": catalog.IndianStocks,
			"us-stocks":     catalog.USStocks,
			"crypto":        catalog.Crypto,
		},
	}
}

// GetMarketData returns the bar series for :ticker.
func (h *MarketHandler) GetMarketData(c *gin.Context) {
	resp, err := h.service.MarketData(
		c.Request.Context(),
		c.Param("ticker"),
		c.Query("timeframe"),
		c.Query("period"),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SymbolsResponse lists one catalog category.
type SymbolsResponse struct {
	Category string              `json:"category"`
	Symbols  []models.SymbolInfo `json:"symbols"`
	Count    int                 `json:"count"`
}

// GetSymbols serves a curated symbol list.
func (h *MarketHandler) GetSymbols(c *gin.Context) {
	category := c.Param("category")
	symbols, ok := h.categories[category]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Unknown category",
			Message: "category must be one of: " + joinKeys(h.categories),
		})
		return
	}
	c.JSON(http.StatusOK, SymbolsResponse{Category: category, Symbols: symbols, Count: len(symbols)})
}

// SymbolInfoResponse describes a single ticker.
type SymbolInfoResponse struct {
	Symbol          string                 `json:"symbol"`
	FormattedSymbol string                 `json:"formatted_symbol"`
	Name            string                 `json:"name"`
	Instrument      models.InstrumentClass `json:"instrument_class"`
	LastPrice       float64                `json:"last_price"`
	Change          float64                `json:"change"`
	ChangePct       float64                `json:"change_percent"`
	LastUpdated     time.Time              `json:"last_updated"`
	DataSource      string                 `json:"data_source"`
}

// GetSymbolInfo returns catalog details and the latest daily close for
// :ticker.
func (h *MarketHandler) GetSymbolInfo(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	data, err := h.service.MarketData(c.Request.Context(), ticker, string(models.Timeframe1d), string(models.Period5d))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := SymbolInfoResponse{
		Symbol:          data.Symbol,
		FormattedSymbol: models.YahooSymbol(data.Symbol),
		Name:            data.Symbol,
		Instrument:      data.Instrument,
		LastPrice:       data.LastPrice,
		Change:          data.Change,
		ChangePct:       data.ChangePct,
		DataSource:      data.DataSource,
	}
	if info, ok := h.catalog.Lookup(data.Symbol); ok {
		resp.Name = info.Name
		resp.Instrument = info.Class
	}
	if n := len(data.Bars); n > 0 {
		resp.LastUpdated = data.Bars[n-1].Timestamp
	}
	c.JSON(http.StatusOK, resp)
}

func joinKeys(m map[string][]models.SymbolInfo) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
