package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		SamplingRatio:     1.0,
		ServiceName:       "inventory-report",
	}

	tp, err := NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, cfg, tp.GetConfig())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(0).Description())
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartSpan(t *testing.T) {
	sr := useSpanRecorder(t)

	_, span := StartSpan(context.Background(), "report.run",
		WithAttributes(SpanAttrAsOfDate.String("2024-01-01"), SpanAttrItemCount.Int(3)),
		WithSpanKind(trace.SpanKindServer),
	)
	EndRun(span, "delivered", nil, SpanAttrDryRun.Bool(true))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "report.run", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), SpanAttrAsOfDate.String("2024-01-01"))
	assert.Contains(t, spans[0].Attributes(), SpanAttrItemCount.Int(3))
	assert.Contains(t, spans[0].Attributes(), SpanAttrDryRun.Bool(true))
	assert.Contains(t, spans[0].Attributes(), SpanAttrOutcome.String("delivered"))
}

func TestEndRun_Error(t *testing.T) {
	sr := useSpanRecorder(t)

	_, span := StartSpan(context.Background(), "report.run")
	EndRun(span, "failed", errors.New("bucket unavailable"))
	EndRun(nil, "failed", nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "bucket unavailable", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), SpanAttrOutcome.String("failed"))
	require.Len(t, spans[0].Events(), 1)
}

func TestReportMetrics_RecordRun(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewReportMetrics(provider.Meter("test"), "weekly")
	require.NoError(t, err)

	m.RecordRun(ctx, "delivered", 12, 2, 30*time.Millisecond)
	m.RecordRun(ctx, "rejected", -1, 0, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	runs, ok := byName["inventory_report_runs_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, runs.DataPoints, 2)

	messages, ok := byName["inventory_report_messages_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, messages.DataPoints, 1)
	assert.Equal(t, int64(2), messages.DataPoints[0].Value)

	items, ok := byName["inventory_report_items"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, items.DataPoints, 1, "rejected runs record no item count")
	assert.Equal(t, float64(12), items.DataPoints[0].Sum)
}

func TestNewReportMetrics_NilMeter(t *testing.T) {
	_, err := NewReportMetrics(nil, "weekly")
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{ServiceName: "inventory-report"}, nil)
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewMeterProvider_WithReader(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{
		ServiceName: "inventory-report",
		Reader:      reader,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, mp.Shutdown(context.Background())) })
	assert.True(t, mp.IsEnabled())

	ctx := context.Background()
	gauge, err := NewGauge(mp.ReportMeter(), "inflight", "in flight", "{run}")
	require.NoError(t, err)
	gauge.Inc(ctx)
	gauge.Inc(ctx)
	gauge.Dec(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, TracerName, rm.ScopeMetrics[0].Scope.Name)
	assert.Equal(t, ServiceVersion, rm.ScopeMetrics[0].Scope.Version)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	assert.False(t, sum.IsMonotonic)
}

func TestLoggerProvider_DisabledBridgeIsIdentity(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{ServiceName: "inventory-report"}, nil)
	require.NoError(t, err)

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestLoggerProvider_BridgeForwardsAtLevel(t *testing.T) {
	exporter := &recordingExporter{}
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{
		ServiceName: "inventory-report",
		Processor:   sdklog.NewSimpleProcessor(exporter),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, lp.Shutdown(context.Background())) })
	require.True(t, lp.IsEnabled())

	local, logs := observer.New(zapcore.DebugLevel)
	logger := lp.Bridge(zap.New(local), zapcore.WarnLevel)

	logger.Info("report built")
	logger.Warn("report rejected")

	assert.Equal(t, 2, logs.Len(), "the local core still sees everything")
	assert.Equal(t, []string{"report rejected"}, exporter.bodies())
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}
	logger := zap.New(core).With(zap.String("component", "test"))

	logger.Info("dropped")
	logger.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "test", entry.ContextMap()["component"])
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
