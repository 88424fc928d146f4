package router

import (
	"net/http"

	"github.com/erp/inventoryreport/internal/infrastructure/logger"
	"github.com/erp/inventoryreport/internal/interfaces/http/dto"
	"github.com/erp/inventoryreport/internal/interfaces/http/handler"
	"github.com/erp/inventoryreport/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig holds what the HTTP engine is built from
type EngineConfig struct {
	ServiceName    string
	MaxBodySize    int64
	TracingEnabled bool
	Meter          metric.Meter
	Logger         *zap.Logger
	System         *handler.SystemHandler
	Reports        *handler.InventoryReportHandler

	// RunAuth guards the run endpoint when set
	RunAuth    gin.HandlerFunc
	// RunLimiter throttles the run endpoint per caller when set
	RunLimiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with middleware and all routes:
//
//	GET  /health
//	GET  /api/v1/system/info
//	POST /api/v1/inventory-reports
//	POST /api/v1/inventory-reports/email
//	POST /api/v1/inventory-reports/runs
//	POST /api/v1/recipients
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Keep JSON numbers exact for decimal parsing
	binding.EnableDecoderUseNumber = true
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
	)
	if cfg.TracingEnabled {
		engine.Use(middleware.Tracing(cfg.ServiceName), middleware.SpanAttributes())
	}
	if cfg.Meter != nil {
		engine.Use(middleware.HTTPMetrics(cfg.Meter, log))
	}
	engine.Use(
		logger.GinMiddleware(log),
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound,
			"Route not found",
			c.GetString(middleware.RequestIDKey),
		))
	})

	if cfg.System != nil {
		engine.GET("/health", cfg.System.Health)
	}

	r := NewRouter(engine)
	if cfg.System != nil {
		r.Register(NewDomainGroup("system", "/system").
			GET("/info", cfg.System.GetSystemInfo))
	}
	if cfg.Reports != nil {
		r.Register(NewDomainGroup("inventory-reports", "/inventory-reports").
			POST("", cfg.Reports.BuildReport).
			POST("/email", cfg.Reports.FormatEmail))
		runs := NewDomainGroup("inventory-report-runs", "/inventory-reports/runs")
		if cfg.RunAuth != nil {
			runs.Use(cfg.RunAuth)
		}
		if cfg.RunLimiter != nil {
			runs.Use(middleware.RateLimit(cfg.RunLimiter))
		}
		r.Register(runs.POST("", cfg.Reports.RunReport))
		r.Register(NewDomainGroup("recipients", "/recipients").
			POST("", cfg.Reports.BuildRecipients))
	}
	r.Setup()

	return engine
}
