// Package bootstrap assembles the report service and its infrastructure from
// configuration. Both the HTTP server and the CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	reportapp "github.com/erp/inventoryreport/internal/application/report"
	"github.com/erp/inventoryreport/internal/infrastructure/auth"
	"github.com/erp/inventoryreport/internal/infrastructure/cache"
	"github.com/erp/inventoryreport/internal/infrastructure/config"
	"github.com/erp/inventoryreport/internal/infrastructure/inventoryapi"
	"github.com/erp/inventoryreport/internal/infrastructure/storage"
	"github.com/erp/inventoryreport/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds the wired components and the hooks that release them
type App struct {
	Logger     *zap.Logger
	Service    *reportapp.ReportService
	Outbox     reportapp.MessageOutbox
	ItemSource *inventoryapi.Client
	Meter      metric.Meter
	Auth       *auth.JWTService // nil when jwt.secret is unset
	Tracing    bool

	shutdowns []func(context.Context) error
}

// New wires telemetry, the outbox, the inventory API client, the run key
// store, token auth and the report service. Call Shutdown when done,
// including after a failed New.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{Logger: log}

	meter, err := app.initTelemetry(ctx, cfg)
	if err != nil {
		return app, err
	}

	outbox, err := NewOutbox(ctx, &cfg.Storage, app.Logger)
	if err != nil {
		return app, err
	}
	app.Outbox = outbox

	client, err := inventoryapi.NewClient(cfg.Report.APIBaseURL, &cfg.InventoryAPI,
		inventoryapi.WithLogger(app.Logger),
	)
	if err != nil {
		return app, fmt.Errorf("failed to create inventory API client: %w", err)
	}
	app.ItemSource = client

	settings, err := Settings(cfg)
	if err != nil {
		return app, err
	}
	app.Meter = meter.ReportMeter()
	metrics, err := telemetry.NewReportMetrics(app.Meter, cfg.Report.Cadence)
	if err != nil {
		return app, fmt.Errorf("failed to register report metrics: %w", err)
	}
	keys, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(app.Logger),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		return app, err
	}
	app.shutdowns = append(app.shutdowns, func(context.Context) error { return keys.Close() })

	if cfg.JWT.Enabled() {
		app.Auth = auth.NewJWTService(cfg.JWT)
	}

	app.Service = reportapp.NewReportService(settings, outbox, app.Logger).
		WithRecorder(metrics).
		WithIdempotency(keys, cfg.Report.IdempotencyTTL)

	return app, nil
}

func (a *App) initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.MeterProvider, error) {
	tc := cfg.Telemetry

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.shutdowns = append(a.shutdowns, tp.Shutdown)
	a.Tracing = tp.IsEnabled()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsExportInterval,
		ServiceName:       cfg.App.Name,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.shutdowns = append(a.shutdowns, mp.Shutdown)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       cfg.App.Name,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log export: %w", err)
	}
	a.shutdowns = append(a.shutdowns, lp.Shutdown)

	level, err := zapcore.ParseLevel(tc.LogsLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	a.Logger = lp.Bridge(a.Logger, level)

	return mp, nil
}

// Shutdown releases components in reverse order of creation
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		if err := a.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdowns = nil
	return errors.Join(errs...)
}

// Settings maps configuration onto report service settings
func Settings(cfg *config.Config) (reportapp.Settings, error) {
	loc, err := cfg.Report.Location()
	if err != nil {
		return reportapp.Settings{}, fmt.Errorf("invalid report time zone: %w", err)
	}

	reps := make([]reportapp.Rep, 0, len(cfg.Report.Reps))
	for _, r := range cfg.Report.Reps {
		reps = append(reps, reportapp.Rep{Name: r.Name, Email: r.Email})
	}

	return reportapp.Settings{
		Enabled:           cfg.Report.Enabled,
		Cadence:           cfg.Report.Cadence,
		Location:          loc,
		DefaultRecipients: cfg.Report.DefaultRecipients,
		Reps:              reps,
		KeyPrefix:         cfg.Storage.KeyPrefix,
	}, nil
}

// NewOutbox returns the message outbox for the configured storage driver.
// S3 buckets are created when missing.
func NewOutbox(ctx context.Context, cfg *config.StorageConfig, log *zap.Logger) (reportapp.MessageOutbox, error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn("Using in-memory outbox, messages are lost on exit")
		return storage.NewMemoryObjectStorage(), nil
	case "s3":
		s3Storage, err := storage.NewS3ObjectStorage(cfg, storage.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 outbox: %w", err)
		}
		if err := s3Storage.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare S3 bucket: %w", err)
		}
		log.Info("S3 outbox ready", zap.String("bucket", s3Storage.GetBucket()))
		return s3Storage, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
