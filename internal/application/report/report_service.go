package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/erp/inventoryreport/internal/domain/report"
	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/infrastructure/logger"
	"github.com/erp/inventoryreport/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageOutbox receives rendered messages; an external mailer picks them up
// from there
type MessageOutbox interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Run outcomes reported to the RunRecorder
const (
	OutcomeDelivered = "delivered"
	OutcomeDryRun    = "dry_run"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// ErrDuplicateRun is returned when a run's idempotency key was already used
// by a completed run
var ErrDuplicateRun = shared.NewDomainError("DUPLICATE_RUN", "a run with this idempotency key was already delivered")

// RunRecorder records the outcome of each run. itemCount is -1 when no
// report was built.
type RunRecorder interface {
	RecordRun(ctx context.Context, outcome string, itemCount, messageCount int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(context.Context, string, int, int, time.Duration) {}

// Settings are the report delivery settings the service runs with
type Settings struct {
	Enabled           bool
	Cadence           string
	Location          *time.Location
	DefaultRecipients []string
	Reps              []Rep
	KeyPrefix         string
}

// RunRequest describes one report run
type RunRequest struct {
	Items           []inventory.RawItem
	AsOf            time.Time // zero means today in the configured time zone
	Reps            []Rep     // empty means the configured reps
	AddedRecipients []string
	DryRun          bool // render only, nothing is written to the outbox
	// IdempotencyKey, when set, makes a second delivered run with the same
	// key fail with ErrDuplicateRun until the key expires
	IdempotencyKey string
}

// Message is the envelope handed to the outbox for one rep
type Message struct {
	Key     string   `json:"-"`
	RunID   string   `json:"run_id"`
	Cadence string   `json:"cadence"`
	AsOf    string   `json:"as_of"`
	To      string   `json:"to"`
	Cc      []string `json:"cc"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// RunResult is the outcome of a report run
type RunResult struct {
	RunID      string                  `json:"run_id,omitempty"`
	Skipped    bool                    `json:"skipped"`
	AsOfDate   string                  `json:"as_of_date,omitempty"`
	Report     *report.InventoryReport `json:"report,omitempty"`
	Recipients []string                `json:"recipients,omitempty"`
	Messages   []Message               `json:"messages,omitempty"`
}

// ReportService builds inventory reports and hands one message per rep to
// the outbox
type ReportService struct {
	settings Settings
	outbox   MessageOutbox
	logger   *zap.Logger
	recorder RunRecorder
	keys     shared.IdempotencyStore
	keyTTL   time.Duration
	now      func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(settings Settings, outbox MessageOutbox, logger *zap.Logger) *ReportService {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		settings: settings,
		outbox:   outbox,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
	}
}

// WithRecorder sets the recorder that receives run outcomes
func (s *ReportService) WithRecorder(r RunRecorder) *ReportService {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
	return s
}

// WithIdempotency enables idempotency keys on runs. A non-positive ttl
// means shared.DefaultIdempotencyTTL.
func (s *ReportService) WithIdempotency(store shared.IdempotencyStore, ttl time.Duration) *ReportService {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyTTL
	}
	s.keys = store
	s.keyTTL = ttl
	return s
}

// WithClock replaces the clock used to pick "today"
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// Today returns the current calendar day in the configured time zone, as
// midnight UTC
func (s *ReportService) Today() time.Time {
	t := s.now().In(s.settings.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Preview builds a report without formatting or delivering anything
func (s *ReportService) Preview(items []inventory.RawItem, asOf time.Time) (*report.InventoryReport, error) {
	if asOf.IsZero() {
		asOf = s.Today()
	}
	return report.BuildInventoryReport(items, asOf)
}

// Run builds the report, renders one email per rep and writes each message
// to the outbox. Validation errors abort the run before anything is written.
// An outbox failure aborts the remaining writes.
func (s *ReportService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := s.now()
	if !s.settings.Enabled {
		logger.WithLogger(ctx, s.logger).Info("inventory report disabled, skipping run")
		s.recorder.RecordRun(ctx, OutcomeSkipped, -1, 0, s.now().Sub(start))
		return &RunResult{Skipped: true}, nil
	}

	runID := uuid.New().String()
	ctx, span := telemetry.StartSpan(ctx, "inventory_report.run",
		telemetry.WithAttributes(
			telemetry.SpanAttrRunID.String(runID),
			telemetry.SpanAttrDryRun.Bool(req.DryRun),
		),
	)

	ctx = logger.WithRunID(ctx, runID)
	log := logger.WithLogger(ctx, s.logger)

	result, err := s.run(ctx, runID, req)
	if err != nil {
		outcome, itemCount := OutcomeRejected, -1
		if errors.Is(err, ErrDuplicateRun) {
			outcome = OutcomeDuplicate
			log.Warn("inventory report already delivered for idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey))
		} else if result != nil {
			outcome, itemCount = OutcomeFailed, result.Report.ItemCount()
			log.Error("failed to hand report to outbox", zap.Error(err))
		} else {
			log.Warn("inventory report rejected", zap.Error(err))
		}
		telemetry.EndRun(span, outcome, err)
		s.recorder.RecordRun(ctx, outcome, itemCount, 0, s.now().Sub(start))
		return nil, err
	}

	outcome, delivered := OutcomeDelivered, len(result.Messages)
	if req.DryRun {
		outcome, delivered = OutcomeDryRun, 0
	}
	telemetry.EndRun(span, outcome, nil,
		telemetry.SpanAttrAsOfDate.String(result.AsOfDate),
		telemetry.SpanAttrItemCount.Int(result.Report.ItemCount()),
		telemetry.SpanAttrRepCount.Int(len(result.Messages)),
		telemetry.SpanAttrRecipientCount.Int(len(result.Recipients)),
	)
	s.recorder.RecordRun(ctx, outcome, result.Report.ItemCount(), delivered, s.now().Sub(start))
	return result, nil
}

// run builds and delivers one report. A non-nil result with an error means
// the report was built but delivery failed.
func (s *ReportService) run(ctx context.Context, runID string, req RunRequest) (*RunResult, error) {
	if err := s.checkKey(ctx, req); err != nil {
		return nil, err
	}

	rpt, err := s.Preview(req.Items, req.AsOf)
	if err != nil {
		return nil, err
	}
	asOf := rpt.AsOfDate().String()

	recipients, err := BuildRecipients(s.settings.DefaultRecipients, req.AddedRecipients)
	if err != nil {
		return nil, err
	}

	reps := req.Reps
	if len(reps) == 0 {
		reps = s.settings.Reps
	}
	if len(reps) == 0 {
		return nil, shared.NewValidationError("reps", "at least one rep is required")
	}

	messages := make([]Message, 0, len(reps))
	for i := range reps {
		email, err := FormatEmail(&reps[i], rpt)
		if err != nil {
			return nil, err
		}
		to := strings.TrimSpace(reps[i].Email)
		messages = append(messages, Message{
			Key:     s.messageKey(asOf, runID, i, to),
			RunID:   runID,
			Cadence: s.settings.Cadence,
			AsOf:    asOf,
			To:      to,
			Cc:      recipients,
			Subject: email.Subject,
			Body:    email.Body,
		})
	}

	logger.WithLogger(ctx, s.logger).Info("inventory report built",
		zap.String("as_of", asOf),
		zap.Int("item_count", rpt.ItemCount()),
		zap.Int("rep_count", len(messages)),
		zap.Int("recipient_count", len(recipients)),
	)

	result := &RunResult{
		RunID:      runID,
		AsOfDate:   asOf,
		Report:     rpt,
		Recipients: recipients,
		Messages:   messages,
	}
	if req.DryRun {
		return result, nil
	}
	if err := s.deliver(ctx, messages); err != nil {
		return result, err
	}
	s.markKey(ctx, req)
	return result, nil
}

// checkKey rejects runs whose key belongs to an already delivered run.
// Keys are only marked after delivery so a failed run can be retried.
func (s *ReportService) checkKey(ctx context.Context, req RunRequest) error {
	if s.keys == nil || req.IdempotencyKey == "" {
		return nil
	}
	seen, err := s.keys.IsProcessed(ctx, runKey(req.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if seen {
		return ErrDuplicateRun
	}
	return nil
}

func (s *ReportService) markKey(ctx context.Context, req RunRequest) {
	if s.keys == nil || req.IdempotencyKey == "" {
		return
	}
	log := logger.WithLogger(ctx, s.logger).With(zap.String("idempotency_key", req.IdempotencyKey))
	marked, err := s.keys.MarkProcessed(ctx, runKey(req.IdempotencyKey), s.keyTTL)
	switch {
	case err != nil:
		log.Error("failed to record idempotency key", zap.Error(err))
	case !marked:
		log.Warn("idempotency key was recorded by a concurrent run")
	}
}

func runKey(key string) string {
	return "run:" + key
}

func (s *ReportService) deliver(ctx context.Context, messages []Message) error {
	if s.outbox == nil {
		return shared.NewDomainError("OUTBOX_UNAVAILABLE", "no message outbox configured")
	}
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message for %s: %w", msg.To, err)
		}
		if err := s.outbox.Upload(ctx, msg.Key, data, "application/json"); err != nil {
			return fmt.Errorf("failed to write message for %s: %w", msg.To, err)
		}
	}
	return nil
}

// messageKey builds <prefix>/<as_of>/<run_id>/<index>-<email>.json
func (s *ReportService) messageKey(asOf, runID string, index int, email string) string {
	name := fmt.Sprintf("%d-%s.json", index, strings.ReplaceAll(email, "/", "_"))
	return path.Join(s.settings.KeyPrefix, asOf, runID, name)
}
