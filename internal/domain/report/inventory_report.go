package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
)

// ReportedItem is a normalized item together with its projected stock-out
// date. The projection is derived when the report is built and never stored
// apart from the item it belongs to.
type ReportedItem struct {
	item                 inventory.Item
	expectedStockOutDate *valueobject.Date
}

// Item returns the normalized item
func (r ReportedItem) Item() inventory.Item {
	return r.item
}

// ExpectedStockOutDate returns a copy of the projected stock-out date, or nil
// when stock is not depleting
func (r ReportedItem) ExpectedStockOutDate() *valueobject.Date {
	if r.expectedStockOutDate == nil {
		return nil
	}
	d := *r.expectedStockOutDate
	return &d
}

// ReportedItemView is the serialized form of a ReportedItem
type ReportedItemView struct {
	inventory.ItemView
	ExpectedStockOutDate *valueobject.Date `json:"expectedStockOutDate"`
}

// MarshalJSON implements json.Marshaler
func (r ReportedItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(ReportedItemView{
		ItemView:             r.item.View(),
		ExpectedStockOutDate: r.ExpectedStockOutDate(),
	})
}

// InventoryReport is a dated snapshot of normalized inventory items.
// Items keep the order they were supplied in.
type InventoryReport struct {
	asOfDate valueobject.Date
	items    []ReportedItem
}

// AsOfDate returns the report date
func (r *InventoryReport) AsOfDate() valueobject.Date {
	return r.asOfDate
}

// Items returns a copy of the reported items
func (r *InventoryReport) Items() []ReportedItem {
	items := make([]ReportedItem, len(r.items))
	copy(items, r.items)
	return items
}

// ItemCount returns the number of reported items
func (r *InventoryReport) ItemCount() int {
	return len(r.items)
}

// MarshalJSON implements json.Marshaler
func (r *InventoryReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AsOfDate valueobject.Date `json:"asOfDate"`
		Items    []ReportedItem   `json:"items"`
	}{
		AsOfDate: r.asOfDate,
		Items:    r.items,
	})
}

// BuildInventoryReport normalizes every raw item and projects its stock-out
// date from asOfDate. The first invalid item aborts the build and its error is
// returned unchanged; no partial report is produced.
// A nil slice is rejected; an empty one yields an empty report.
func BuildInventoryReport(items []inventory.RawItem, asOfDate time.Time) (*InventoryReport, error) {
	if items == nil {
		return nil, shared.NewValidationError("items", "items must be a list")
	}
	if asOfDate.IsZero() {
		return nil, shared.NewValidationError("asOfDate", "asOfDate must be a valid date")
	}

	reported := make([]ReportedItem, 0, len(items))
	for _, raw := range items {
		item, err := inventory.NormalizeItem(raw)
		if err != nil {
			return nil, err
		}

		stockOut, err := inventory.ProjectStockOut(item.OnHand(), item.AverageDailyUsage(), asOfDate)
		if err != nil {
			if verr, ok := shared.AsValidationError(err); ok {
				return nil, shared.NewValidationError(verr.Field, fmt.Sprintf("item %s: %s", item.SKU(), verr.Message))
			}
			return nil, err
		}

		reported = append(reported, ReportedItem{
			item:                 *item,
			expectedStockOutDate: stockOut,
		})
	}

	return &InventoryReport{
		asOfDate: valueobject.NewDate(asOfDate),
		items:    reported,
	}, nil
}

// String returns a short description used in logs
func (r *InventoryReport) String() string {
	return fmt.Sprintf("inventory report %s (%d items)", r.asOfDate, len(r.items))
}
