package report

import (
	"fmt"
	"strings"

	"github.com/erp/inventoryreport/internal/domain/report"
	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
)

const notAvailable = "N/A"

// Rep is the sales rep a report email is addressed to
type Rep struct {
	Name  string `json:"name" mapstructure:"name" validate:"required"`
	Email string `json:"email" mapstructure:"email" validate:"required,email"`
}

// Email is a rendered report message
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FormatEmail renders rpt as a plain-text message for rep.
// The rep's name and email are trimmed and must not be empty.
func FormatEmail(rep *Rep, rpt *report.InventoryReport) (*Email, error) {
	if rep == nil {
		return nil, shared.NewValidationError("rep", "rep is required")
	}
	name := strings.TrimSpace(rep.Name)
	if name == "" {
		return nil, shared.NewValidationError("rep.name", "rep name is required")
	}
	if strings.TrimSpace(rep.Email) == "" {
		return nil, shared.NewValidationError("rep.email", "rep email is required")
	}
	if rpt == nil {
		return nil, shared.NewValidationError("report", "report is required")
	}

	asOf := rpt.AsOfDate().String()
	lines := []string{
		fmt.Sprintf("Hi %s,", name),
		"",
		fmt.Sprintf("Here is your inventory report as of %s:", asOf),
	}
	for _, reported := range rpt.Items() {
		lines = append(lines, formatItemLine(reported))
	}
	lines = append(lines, "", "Reply if you have questions.")

	return &Email{
		Subject: fmt.Sprintf("Inventory report (%s)", asOf),
		Body:    strings.Join(lines, "\n"),
	}, nil
}

func formatItemLine(reported report.ReportedItem) string {
	item := reported.Item()

	image := notAvailable
	if u := item.ImageURL(); u != nil {
		image = *u
	}

	return fmt.Sprintf("- %s (%s): %s on hand, $%s per unit total value $%s total COGS $%s last sold %s, stock-out %s, image: %s",
		item.Name(),
		item.SKU(),
		item.OnHand().String(),
		item.Price().StringFixed(2),
		item.TotalValue().StringFixed(2),
		item.TotalCostOfGoodsSold().StringFixed(2),
		dateOrNA(item.LastSoldAt()),
		dateOrNA(reported.ExpectedStockOutDate()),
		image,
	)
}

func dateOrNA(d *valueobject.Date) string {
	if d == nil {
		return notAvailable
	}
	return d.String()
}
