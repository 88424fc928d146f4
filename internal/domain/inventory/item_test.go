package inventory

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawItem() RawItem {
	return RawItem{
		KeySKU:               "SKU-1",
		KeyName:              "Widget",
		KeyOnHand:            10,
		KeyPrice:             2.5,
		KeyCostPerUnit:       1.25,
		KeyTotalUnitsSold:    4,
		KeyAverageDailyUsage: 2,
		KeyImageURL:          "https://cdn.example.com/widget.png",
		KeyLastSoldAt:        "2024-01-01T12:00:00Z",
	}
}

func TestNormalizeItem(t *testing.T) {
	t.Run("normalizes a valid record", func(t *testing.T) {
		item, err := NormalizeItem(validRawItem())
		require.NoError(t, err)

		assert.Equal(t, "SKU-1", item.SKU())
		assert.Equal(t, "Widget", item.Name())
		assert.True(t, decimal.NewFromInt(10).Equal(item.OnHand()))
		assert.True(t, decimal.RequireFromString("25").Equal(item.TotalValue()))
		assert.True(t, decimal.RequireFromString("5").Equal(item.TotalCostOfGoodsSold()))
		require.NotNil(t, item.ImageURL())
		assert.Equal(t, "https://cdn.example.com/widget.png", *item.ImageURL())
		require.NotNil(t, item.LastSoldAt())
		assert.Equal(t, "2024-01-01", item.LastSoldAt().String())
	})

	t.Run("trims text fields", func(t *testing.T) {
		raw := validRawItem()
		raw[KeySKU] = "  SKU-2 "
		raw[KeyName] = "\tGadget\n"

		item, err := NormalizeItem(raw)
		require.NoError(t, err)
		assert.Equal(t, "SKU-2", item.SKU())
		assert.Equal(t, "Gadget", item.Name())
	})

	t.Run("numeric sku is coerced to text", func(t *testing.T) {
		raw := validRawItem()
		raw[KeySKU] = 1234

		item, err := NormalizeItem(raw)
		require.NoError(t, err)
		assert.Equal(t, "1234", item.SKU())
	})

	t.Run("numeric strings are accepted", func(t *testing.T) {
		raw := validRawItem()
		raw[KeyOnHand] = "3"
		raw[KeyPrice] = "0.1"

		item, err := NormalizeItem(raw)
		require.NoError(t, err)
		assert.Equal(t, "0.3", item.TotalValue().String())
	})

	t.Run("optional fields may be absent", func(t *testing.T) {
		raw := validRawItem()
		delete(raw, KeyImageURL)
		raw[KeyLastSoldAt] = nil

		item, err := NormalizeItem(raw)
		require.NoError(t, err)
		assert.Nil(t, item.ImageURL())
		assert.Nil(t, item.LastSoldAt())
	})

	t.Run("totals are exact decimal products", func(t *testing.T) {
		raw := validRawItem()
		raw[KeyOnHand] = 3
		raw[KeyPrice] = "19.99"
		raw[KeyTotalUnitsSold] = "0.1"
		raw[KeyCostPerUnit] = "0.2"

		item, err := NormalizeItem(raw)
		require.NoError(t, err)
		assert.Equal(t, "59.97", item.TotalValue().String())
		assert.Equal(t, "0.02", item.TotalCostOfGoodsSold().String())
	})

	t.Run("name length limit counts characters", func(t *testing.T) {
		raw := validRawItem()
		raw[KeyName] = strings.Repeat("é", MaxItemNameLength)
		_, err := NormalizeItem(raw)
		require.NoError(t, err)

		raw[KeyName] = strings.Repeat("é", MaxItemNameLength+1)
		_, err = NormalizeItem(raw)
		require.Error(t, err)
	})

	t.Run("nil record", func(t *testing.T) {
		_, err := NormalizeItem(nil)
		require.Error(t, err)
		assert.Equal(t, "item is required", err.Error())
	})
}

func TestNormalizeItem_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(RawItem)
		field   string
		message string
	}{
		{"missing sku", func(r RawItem) { delete(r, KeySKU) }, KeySKU, "item sku is required"},
		{"blank sku", func(r RawItem) { r[KeySKU] = "   " }, KeySKU, "item sku is required"},
		{"missing name", func(r RawItem) { r[KeyName] = "" }, KeyName, "item name is required and must be at most 200 characters"},
		{"negative onHand", func(r RawItem) { r[KeyOnHand] = -1 }, KeyOnHand, "item onHand must be a non-negative number"},
		{"overflowing onHand", func(r RawItem) { r[KeyOnHand] = "1e400" }, KeyOnHand, "item onHand must be a non-negative number"},
		{"overflowing price", func(r RawItem) { r[KeyPrice] = "1e20000000" }, KeyPrice, "item price must be a non-negative number"},
		{"negative overflow cost", func(r RawItem) { r[KeyCostPerUnit] = json.Number("-1e400") }, KeyCostPerUnit, "item costPerUnit must be a non-negative number"},
		{"overflowing usage", func(r RawItem) { r[KeyAverageDailyUsage] = "1e400" }, KeyAverageDailyUsage, "item averageDailyUsage must be a non-negative number"},
		{"overflowing units sold", func(r RawItem) { r[KeyTotalUnitsSold] = "1e400" }, KeyTotalUnitsSold, "item totalUnitsSold must be a non-negative number"},
		{"missing price", func(r RawItem) { delete(r, KeyPrice) }, KeyPrice, "item price must be a non-negative number"},
		{"text costPerUnit", func(r RawItem) { r[KeyCostPerUnit] = "cheap" }, KeyCostPerUnit, "item costPerUnit must be a non-negative number"},
		{"negative usage", func(r RawItem) { r[KeyAverageDailyUsage] = -0.5 }, KeyAverageDailyUsage, "item averageDailyUsage must be a non-negative number"},
		{"missing units sold", func(r RawItem) { delete(r, KeyTotalUnitsSold) }, KeyTotalUnitsSold, "item totalUnitsSold must be a non-negative number"},
		{"ftp image", func(r RawItem) { r[KeyImageURL] = "ftp://example.com/a.png" }, KeyImageURL, "item image URL must be http or https"},
		{"numeric image", func(r RawItem) { r[KeyImageURL] = 0 }, KeyImageURL, "item image URL must be http or https"},
		{"long image", func(r RawItem) { r[KeyImageURL] = "https://" + strings.Repeat("a", MaxImageURLLength) }, KeyImageURL, "item image URL is too long"},
		{"bad lastSoldAt", func(r RawItem) { r[KeyLastSoldAt] = "someday" }, KeyLastSoldAt, "item lastSoldAt is not a valid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRawItem()
			tt.mutate(raw)

			item, err := NormalizeItem(raw)
			require.Error(t, err)
			assert.Nil(t, item)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)

			verr, ok := shared.AsValidationError(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)
		})
	}
}

func TestNormalizeItem_CheckOrder(t *testing.T) {
	raw := RawItem{
		KeySKU:        "",
		KeyName:       "",
		KeyOnHand:     -1,
		KeyImageURL:   "ftp://nope",
		KeyLastSoldAt: "never",
	}

	_, err := NormalizeItem(raw)
	require.Error(t, err)
	assert.Equal(t, "item sku is required", err.Error())

	raw[KeySKU] = "A"
	_, err = NormalizeItem(raw)
	assert.Equal(t, "item name is required and must be at most 200 characters", err.Error())

	raw[KeyName] = "B"
	_, err = NormalizeItem(raw)
	assert.Equal(t, "item onHand must be a non-negative number", err.Error())

	raw[KeyOnHand] = 1
	raw[KeyPrice] = 1
	raw[KeyCostPerUnit] = 1
	raw[KeyAverageDailyUsage] = 1
	raw[KeyTotalUnitsSold] = 1
	_, err = NormalizeItem(raw)
	assert.Equal(t, "item image URL must be http or https", err.Error())

	raw[KeyImageURL] = nil
	_, err = NormalizeItem(raw)
	assert.Equal(t, "item lastSoldAt is not a valid date", err.Error())
}

func TestItem_Getters_ReturnCopies(t *testing.T) {
	item, err := NormalizeItem(validRawItem())
	require.NoError(t, err)

	url := item.ImageURL()
	*url = "https://evil.example.com"
	assert.Equal(t, "https://cdn.example.com/widget.png", *item.ImageURL())

	day := item.LastSoldAt()
	*day = day.AddDays(10)
	assert.Equal(t, "2024-01-01", item.LastSoldAt().String())
}

func TestItem_MarshalJSON(t *testing.T) {
	raw := validRawItem()
	delete(raw, KeyImageURL)

	item, err := NormalizeItem(raw)
	require.NoError(t, err)

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sku": "SKU-1",
		"name": "Widget",
		"onHand": "10",
		"price": "2.5",
		"costPerUnit": "1.25",
		"averageDailyUsage": "2",
		"totalUnitsSold": "4",
		"imageUrl": null,
		"lastSoldAt": "2024-01-01",
		"totalValue": "25",
		"totalCostOfGoodsSold": "5"
	}`, string(data))
}
