package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Metric attribute keys
var (
	AttrOutcome = attribute.Key("outcome")
	AttrCadence = attribute.Key("cadence")
)

// ReportMetrics counts report runs and the messages they produce
type ReportMetrics struct {
	runsTotal     *Counter
	messagesTotal *Counter
	itemsPerRun   *Histogram
	runDuration   *Histogram
	cadence       string
}

// NewReportMetrics registers the report instruments on meter
func NewReportMetrics(meter metric.Meter, cadence string) (*ReportMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	runsTotal, err := NewCounter(meter,
		"inventory_report_runs_total",
		"Inventory report runs by outcome",
		"{run}",
	)
	if err != nil {
		return nil, err
	}
	messagesTotal, err := NewCounter(meter,
		"inventory_report_messages_total",
		"Report messages handed to the outbox",
		"{message}",
	)
	if err != nil {
		return nil, err
	}
	itemsPerRun, err := NewHistogram(meter, HistogramOpts{
		Name:        "inventory_report_items",
		Description: "Items per built report",
		Unit:        "{item}",
		Boundaries:  []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
	})
	if err != nil {
		return nil, err
	}
	runDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "inventory_report_run_duration_seconds",
		Description: "Time spent building and delivering a report",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
	if err != nil {
		return nil, err
	}

	return &ReportMetrics{
		runsTotal:     runsTotal,
		messagesTotal: messagesTotal,
		itemsPerRun:   itemsPerRun,
		runDuration:   runDuration,
		cadence:       cadence,
	}, nil
}

// RecordRun records one finished run. itemCount is ignored for runs that
// never built a report.
func (m *ReportMetrics) RecordRun(ctx context.Context, outcome string, itemCount, messageCount int, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		AttrOutcome.String(outcome),
		AttrCadence.String(m.cadence),
	}
	m.runsTotal.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, elapsed, attrs...)
	if itemCount >= 0 {
		m.itemsPerRun.Record(ctx, float64(itemCount), attrs...)
	}
	if messageCount > 0 {
		m.messagesTotal.Add(ctx, int64(messageCount), attrs...)
	}
}
