package csvimport

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventoryCSV = `sku,name,onHand,price,costPerUnit,totalUnitsSold,averageDailyUsage,imageUrl,lastSoldAt
A-1,Widget,10,2.50,1.25,40,2,https://cdn.example.com/a.png,2024-01-01
B-2,"Gadget, large",0,10,7,0,0,,
`

func TestReadInventoryCSV(t *testing.T) {
	items, err := ReadInventoryCSV(strings.NewReader(inventoryCSV))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, inventory.RawItem{
		"sku":               "A-1",
		"name":              "Widget",
		"onHand":            "10",
		"price":             "2.50",
		"costPerUnit":       "1.25",
		"totalUnitsSold":    "40",
		"averageDailyUsage": "2",
		"imageUrl":          "https://cdn.example.com/a.png",
		"lastSoldAt":        "2024-01-01",
	}, items[0])

	assert.Equal(t, "Gadget, large", items[1]["name"])
	assert.NotContains(t, items[1], "imageUrl", "empty optional cells are absent")
	assert.NotContains(t, items[1], "lastSoldAt")

	item, err := inventory.NormalizeItem(items[0])
	require.NoError(t, err)
	assert.Equal(t, "25", item.TotalValue().String())
}

func TestReadInventoryCSV_HeaderVariants(t *testing.T) {
	csv := "SKU,Name,On Hand,price,cost_per_unit,Total-Units-Sold,average daily usage\nA,Widget,1,1,1,1,1\n"

	items, err := ReadInventoryCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0][inventory.KeyOnHand])
	assert.Equal(t, "1", items[0][inventory.KeyCostPerUnit])
	assert.Len(t, items[0], 7)
}

func TestReadInventoryCSV_RequiredEmptyCellKept(t *testing.T) {
	csv := "sku,name,onHand,price,costPerUnit,totalUnitsSold,averageDailyUsage\nA,Widget,,1,1,1,1\n"

	items, err := ReadInventoryCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "", items[0][inventory.KeyOnHand])

	_, err = inventory.NormalizeItem(items[0])
	assert.Error(t, err, "blank onHand is rejected by normalization")
}

func TestReadInventoryCSV_MissingColumns(t *testing.T) {
	_, err := ReadInventoryCSV(strings.NewReader("sku,name,price\nA,Widget,1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHeader)

	var missing *MissingHeadersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"onHand", "costPerUnit", "totalUnitsSold", "averageDailyUsage"}, missing.Headers)
}

func TestReadInventoryCSV_HeaderOnly(t *testing.T) {
	items, err := ReadInventoryCSV(strings.NewReader("sku,name,onHand,price,costPerUnit,totalUnitsSold,averageDailyUsage\n"))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestReadInventoryJSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		items, err := ReadInventoryJSON(strings.NewReader(`[{"sku":"A","onHand":10.5,"price":"2"}]`))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, json.Number("10.5"), items[0]["onHand"])
		assert.Equal(t, "2", items[0]["price"])
	})

	t.Run("items envelope", func(t *testing.T) {
		items, err := ReadInventoryJSON(strings.NewReader(`{"items":[{"sku":"A"},{"sku":"B"}]}`))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "B", items[1]["sku"])
	})

	t.Run("empty array", func(t *testing.T) {
		items, err := ReadInventoryJSON(strings.NewReader(`[]`))
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty input", "  "},
		{"null", "null"},
		{"object without items", `{"data":[]}`},
		{"array of numbers", `[1,2]`},
		{"broken", `[{"sku":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadInventoryJSON(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadInventoryFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "items.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte(inventoryCSV), 0o600))
	items, err := ReadInventoryFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	jsonPath := filepath.Join(dir, "items.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"sku":"A"}]`), 0o600))
	items, err = ReadInventoryFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	txtPath := filepath.Join(dir, "items.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o600))
	_, err = ReadInventoryFile(txtPath)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadInventoryFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
