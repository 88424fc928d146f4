package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/inventoryreport/internal/bootstrap"
	"github.com/erp/inventoryreport/internal/infrastructure/auth"
	"github.com/erp/inventoryreport/internal/infrastructure/config"
	"github.com/erp/inventoryreport/internal/infrastructure/logger"
	"github.com/erp/inventoryreport/internal/infrastructure/telemetry"
	"github.com/erp/inventoryreport/internal/interfaces/http/handler"
	"github.com/erp/inventoryreport/internal/interfaces/http/middleware"
	"github.com/erp/inventoryreport/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (env vars still override)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := bootstrap.New(context.Background(), cfg, log)
	if err != nil {
		_ = app.Shutdown(context.Background())
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	log = app.Logger

	log.Info("Starting inventory report server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("reports_enabled", cfg.Report.Enabled),
		zap.String("cadence", cfg.Report.Cadence),
	)

	var runAuth gin.HandlerFunc
	if app.Auth != nil {
		runAuth = middleware.JWTAuth(app.Auth, auth.ScopeRunReports, log)
	} else {
		log.Warn("jwt.secret is not set, report runs are accepted without a token")
	}

	var runLimiter *middleware.RateLimiter
	if cfg.HTTP.RunRateLimit > 0 {
		runLimiter = middleware.NewRateLimiter(cfg.HTTP.RunRateLimit, cfg.HTTP.RunRateBurst)
	}

	engine := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.App.Name,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TracingEnabled: app.Tracing,
		Meter:          app.Meter,
		Logger:         log,
		System:         handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion),
		Reports:        handler.NewInventoryReportHandler(app.Service, app.ItemSource),
		RunAuth:        runAuth,
		RunLimiter:     runLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Shutdown(ctx); err != nil {
		log.Error("Component shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
