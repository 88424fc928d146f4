package inventory

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// MaxItemNameLength is the longest item name accepted, in characters
const MaxItemNameLength = 200

// RawItem keys
const (
	KeySKU               = "sku"
	KeyName              = "name"
	KeyOnHand            = "onHand"
	KeyPrice             = "price"
	KeyCostPerUnit       = "costPerUnit"
	KeyLastSoldAt        = "lastSoldAt"
	KeyImageURL          = "imageUrl"
	KeyTotalUnitsSold    = "totalUnitsSold"
	KeyAverageDailyUsage = "averageDailyUsage"
)

// RawItem is an untrusted inventory record as delivered by an external
// source. Values carry no type guarantees.
type RawItem map[string]any

// Item is a validated inventory record. Its fields are only reachable through
// getters and NormalizeItem is the only constructor, so the derived totals
// always agree with the fields they are computed from.
type Item struct {
	sku               string
	name              string
	onHand            decimal.Decimal
	price             decimal.Decimal
	costPerUnit       decimal.Decimal
	averageDailyUsage decimal.Decimal
	totalUnitsSold    decimal.Decimal
	imageURL          *string
	lastSoldAt        *valueobject.Date

	totalValue           decimal.Decimal
	totalCostOfGoodsSold decimal.Decimal
}

// NormalizeItem validates a raw record and returns its canonical form.
// Checks run in a fixed order and the first violation is returned:
// sku, name, onHand, price, costPerUnit, averageDailyUsage, totalUnitsSold,
// imageUrl, lastSoldAt.
func NormalizeItem(raw RawItem) (*Item, error) {
	if raw == nil {
		return nil, shared.NewValidationError("", "item is required")
	}

	sku := strings.TrimSpace(CoerceText(raw[KeySKU]))
	if sku == "" {
		return nil, shared.NewValidationError(KeySKU, "item sku is required")
	}

	name := strings.TrimSpace(CoerceText(raw[KeyName]))
	if name == "" || utf8.RuneCountInString(name) > MaxItemNameLength {
		return nil, shared.NewValidationError(KeyName, "item name is required and must be at most 200 characters")
	}

	onHand, err := parseNonNegative(KeyOnHand, "item onHand", raw[KeyOnHand])
	if err != nil {
		return nil, err
	}
	price, err := parseNonNegative(KeyPrice, "item price", raw[KeyPrice])
	if err != nil {
		return nil, err
	}
	costPerUnit, err := parseNonNegative(KeyCostPerUnit, "item costPerUnit", raw[KeyCostPerUnit])
	if err != nil {
		return nil, err
	}
	averageDailyUsage, err := parseNonNegative(KeyAverageDailyUsage, "item averageDailyUsage", raw[KeyAverageDailyUsage])
	if err != nil {
		return nil, err
	}
	totalUnitsSold, err := parseNonNegative(KeyTotalUnitsSold, "item totalUnitsSold", raw[KeyTotalUnitsSold])
	if err != nil {
		return nil, err
	}

	imageURL, err := normalizeURL(KeyImageURL, "item image URL", raw[KeyImageURL])
	if err != nil {
		return nil, err
	}
	lastSoldAt, err := normalizeDate(KeyLastSoldAt, "item lastSoldAt", raw[KeyLastSoldAt])
	if err != nil {
		return nil, err
	}

	return &Item{
		sku:                  sku,
		name:                 name,
		onHand:               onHand,
		price:                price,
		costPerUnit:          costPerUnit,
		averageDailyUsage:    averageDailyUsage,
		totalUnitsSold:       totalUnitsSold,
		imageURL:             imageURL,
		lastSoldAt:           lastSoldAt,
		totalValue:           onHand.Mul(price),
		totalCostOfGoodsSold: totalUnitsSold.Mul(costPerUnit),
	}, nil
}

// SKU returns the stock-keeping unit identifier
func (i Item) SKU() string {
	return i.sku
}

// Name returns the item name
func (i Item) Name() string {
	return i.name
}

// OnHand returns the current quantity in inventory
func (i Item) OnHand() decimal.Decimal {
	return i.onHand
}

// Price returns the unit price
func (i Item) Price() decimal.Decimal {
	return i.price
}

// CostPerUnit returns the unit cost
func (i Item) CostPerUnit() decimal.Decimal {
	return i.costPerUnit
}

// AverageDailyUsage returns the mean units depleted per day
func (i Item) AverageDailyUsage() decimal.Decimal {
	return i.averageDailyUsage
}

// TotalUnitsSold returns the number of units sold to date
func (i Item) TotalUnitsSold() decimal.Decimal {
	return i.totalUnitsSold
}

// TotalValue returns onHand × price
func (i Item) TotalValue() decimal.Decimal {
	return i.totalValue
}

// TotalCostOfGoodsSold returns totalUnitsSold × costPerUnit
func (i Item) TotalCostOfGoodsSold() decimal.Decimal {
	return i.totalCostOfGoodsSold
}

// ImageURL returns a copy of the image URL, or nil when absent
func (i Item) ImageURL() *string {
	if i.imageURL == nil {
		return nil
	}
	u := *i.imageURL
	return &u
}

// LastSoldAt returns a copy of the last-sold date, or nil when absent
func (i Item) LastSoldAt() *valueobject.Date {
	if i.lastSoldAt == nil {
		return nil
	}
	d := *i.lastSoldAt
	return &d
}

// ItemView is the serialized form of an Item
type ItemView struct {
	SKU                  string            `json:"sku"`
	Name                 string            `json:"name"`
	OnHand               decimal.Decimal   `json:"onHand"`
	Price                decimal.Decimal   `json:"price"`
	CostPerUnit          decimal.Decimal   `json:"costPerUnit"`
	AverageDailyUsage    decimal.Decimal   `json:"averageDailyUsage"`
	TotalUnitsSold       decimal.Decimal   `json:"totalUnitsSold"`
	ImageURL             *string           `json:"imageUrl"`
	LastSoldAt           *valueobject.Date `json:"lastSoldAt"`
	TotalValue           decimal.Decimal   `json:"totalValue"`
	TotalCostOfGoodsSold decimal.Decimal   `json:"totalCostOfGoodsSold"`
}

// View returns a serializable snapshot of the item
func (i Item) View() ItemView {
	return ItemView{
		SKU:                  i.sku,
		Name:                 i.name,
		OnHand:               i.onHand,
		Price:                i.price,
		CostPerUnit:          i.costPerUnit,
		AverageDailyUsage:    i.averageDailyUsage,
		TotalUnitsSold:       i.totalUnitsSold,
		ImageURL:             i.ImageURL(),
		LastSoldAt:           i.LastSoldAt(),
		TotalValue:           i.totalValue,
		TotalCostOfGoodsSold: i.totalCostOfGoodsSold,
	}
}

// MarshalJSON implements json.Marshaler
func (i Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.View())
}
