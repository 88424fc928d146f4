package dto

import (
	reportapp "github.com/erp/inventoryreport/internal/application/report"
	"github.com/erp/inventoryreport/internal/domain/inventory"
)

// ItemSourceAPI asks the server to fetch items from the inventory API
const ItemSourceAPI = "api"

// BuildReportRequest is the body of POST /inventory-reports
type BuildReportRequest struct {
	AsOfDate string              `json:"as_of_date" binding:"omitempty,datetime=2006-01-02"`
	Source   string              `json:"source" binding:"omitempty,oneof=api"`
	Items    []inventory.RawItem `json:"items"`
}

// FormatEmailRequest is the body of POST /inventory-reports/email
type FormatEmailRequest struct {
	Rep      *reportapp.Rep      `json:"rep"`
	AsOfDate string              `json:"as_of_date" binding:"omitempty,datetime=2006-01-02"`
	Items    []inventory.RawItem `json:"items"`
}

// RunReportRequest is the body of POST /inventory-reports/runs
type RunReportRequest struct {
	AsOfDate   string              `json:"as_of_date" binding:"omitempty,datetime=2006-01-02"`
	Source     string              `json:"source" binding:"omitempty,oneof=api"`
	Items      []inventory.RawItem `json:"items"`
	Reps       []reportapp.Rep     `json:"reps"`
	Recipients []string            `json:"recipients"`
	DryRun     bool                `json:"dry_run"`
}

// BuildRecipientsRequest is the body of POST /recipients
type BuildRecipientsRequest struct {
	Base  []string `json:"base"`
	Added []string `json:"added"`
}

// EmailResponse is a rendered report email
type EmailResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RecipientsResponse is the merged recipient list
type RecipientsResponse struct {
	Recipients []string `json:"recipients"`
}
