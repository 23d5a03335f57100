package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/signalforge-go/internal/api/handlers"
	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/logging"
	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/middleware"
	"github.com/irfndi/signalforge-go/internal/models"
)

// Dependencies are the collaborators the routes are built from. Metrics,
// Redis and CCXT may be nil. CORS is enabled only when AllowedOrigins is
// non-empty.
type Dependencies struct {
	Analysis       handlers.AnalysisService
	Capital        config.CapitalConfig
	Metrics        *metrics.Registry
	Admin          *middleware.AdminMiddleware
	Redis          handlers.HealthChecker
	CCXT           handlers.HealthChecker
	AllowedOrigins []string
	ServiceName    string
	Version        string
	Logger         *logrus.Logger
}

// SetupRoutes installs middleware and every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Admin == nil {
		deps.Admin = middleware.NewAdminMiddleware("")
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "signalforge"
	}

	router.Use(middleware.RequestID())
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  deps.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key", middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	router.Use(otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health" && r.URL.Path != "/metrics"
	})))
	router.Use(middleware.TelemetryMiddleware())
	router.Use(middleware.RequestLogger(logging.WrapLogger(deps.Logger)))

	healthHandler := handlers.NewHealthHandler(deps.Version, map[string]handlers.HealthChecker{
		"redis": deps.Redis,
		"ccxt":  deps.CCXT,
	})
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	analysisHandler := handlers.NewAnalysisHandler(deps.Analysis, deps.Capital, deps.Logger)
	marketHandler := handlers.NewMarketHandler(deps.Analysis, models.DefaultSymbolCatalog())
	cacheHandler := handlers.NewCacheHandler(deps.Analysis, deps.Logger)

	v1 := router.Group("/api/v1")
	{
		analyze := v1.Group("/analyze")
		{
			analyze.POST("/forex/:pair", analysisHandler.AnalyzeForex)
			analyze.GET("/:ticker", analysisHandler.Analyze)
			analyze.POST("/:ticker", analysisHandler.Analyze)
		}

		v1.GET("/market-data/:ticker", marketHandler.GetMarketData)
		v1.GET("/symbols/:category", marketHandler.GetSymbols)
		v1.GET("/symbol-info/:ticker", marketHandler.GetSymbolInfo)

		admin := v1.Group("/admin")
		admin.Use(deps.Admin.RequireAdminAuth())
		{
			admin.GET("/cache/stats", cacheHandler.GetCacheStats)
		admin.DELETE("/cache/:ticker", cacheHandler.InvalidateTicker)
		}
	}
}
