package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/middleware"
)

// CacheHandler exposes cache maintenance to admins.
type CacheHandler struct {
	service AnalysisService
	logger  *logrus.Logger
}

func NewCacheHandler(service AnalysisService, logger *logrus.Logger) *CacheHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CacheHandler{service: service, logger: logger}
}

// GetCacheStats returns bar cache hit/miss statistics.
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats, err := h.service.CacheStats()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// InvalidateTicker drops every cached series for :ticker.
func (h *CacheHandler) InvalidateTicker(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	deleted, err := h.service.InvalidateCache(c.Request.Context(), ticker)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"ticker":     ticker,
		"deleted":    deleted,
		"request_id": middleware.GetRequestID(c),
	}).Info("Admin cache invalidation")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ticker":  ticker,
		"deleted": deleted,
	})
}
