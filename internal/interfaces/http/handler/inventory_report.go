package handler

import (
	"context"
	"time"

	reportapp "github.com/erp/inventoryreport/internal/application/report"
	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
	"github.com/erp/inventoryreport/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ItemSource fetches raw inventory records from an external system
type ItemSource interface {
	FetchItems(ctx context.Context) ([]inventory.RawItem, error)
}

// InventoryReportHandler serves report previews, email rendering, recipient
// merging and report runs
type InventoryReportHandler struct {
	BaseHandler
	service *reportapp.ReportService
	source  ItemSource
}

// NewInventoryReportHandler creates a new InventoryReportHandler. source may
// be nil, in which case requests must carry their items.
func NewInventoryReportHandler(service *reportapp.ReportService, source ItemSource) *InventoryReportHandler {
	return &InventoryReportHandler{
		service: service,
		source:  source,
	}
}

// BuildReport handles POST /inventory-reports
func (h *InventoryReportHandler) BuildReport(c *gin.Context) {
	var req dto.BuildReportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	asOf, err := parseAsOfDate(req.AsOfDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items, err := h.resolveItems(c.Request.Context(), req.Source, req.Items)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	rpt, err := h.service.Preview(items, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rpt)
}

// FormatEmail handles POST /inventory-reports/email
func (h *InventoryReportHandler) FormatEmail(c *gin.Context) {
	var req dto.FormatEmailRequest
	if !h.BindJSON(c, &req) {
		return
	}

	asOf, err := parseAsOfDate(req.AsOfDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	rpt, err := h.service.Preview(req.Items, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	email, err := reportapp.FormatEmail(req.Rep, rpt)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.EmailResponse{
		Subject: email.Subject,
		Body:    email.Body,
	})
}

// BuildRecipients handles POST /recipients
func (h *InventoryReportHandler) BuildRecipients(c *gin.Context) {
	var req dto.BuildRecipientsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	recipients, err := reportapp.BuildRecipients(req.Base, req.Added)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.RecipientsResponse{Recipients: recipients})
}

// IdempotencyKeyHeader lets clients retry a run without sending it twice
const IdempotencyKeyHeader = "Idempotency-Key"

// RunReport handles POST /inventory-reports/runs
func (h *InventoryReportHandler) RunReport(c *gin.Context) {
	var req dto.RunReportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	asOf, err := parseAsOfDate(req.AsOfDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items, err := h.resolveItems(c.Request.Context(), req.Source, req.Items)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Run(c.Request.Context(), reportapp.RunRequest{
		Items:           items,
		AsOf:            asOf,
		Reps:            req.Reps,
		AddedRecipients: req.Recipients,
		DryRun:          req.DryRun,
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Skipped {
		h.HandleError(c, shared.ErrDisabled)
		return
	}
	h.Created(c, result)
}

func (h *InventoryReportHandler) resolveItems(ctx context.Context, source string, items []inventory.RawItem) ([]inventory.RawItem, error) {
	if source != dto.ItemSourceAPI {
		return items, nil
	}
	if h.source == nil {
		return nil, shared.NewDomainError("INVENTORY_API_UNAVAILABLE", "inventory API is not configured")
	}
	fetched, err := h.source.FetchItems(ctx)
	if err != nil {
		return nil, shared.NewDomainError("INVENTORY_API_UNAVAILABLE", err.Error())
	}
	return fetched, nil
}

// parseAsOfDate returns the zero time for an empty string, which makes the
// service use today in the configured time zone
func parseAsOfDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := valueobject.ParseDate(s)
	if err != nil {
		return time.Time{}, shared.NewValidationError("asOfDate", "asOfDate must be a valid date")
	}
	return d.Time(), nil
}
