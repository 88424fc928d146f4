package csvimport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/erp/inventoryreport/internal/domain/inventory"
)

// MaxFileSize bounds inventory files read from disk or a request body
const MaxFileSize = 10 << 20

// Inventory columns. Headers are matched ignoring case, spaces, dashes and
// underscores, so "On Hand" and "on_hand" both map to onHand.
var (
	requiredColumns = []string{
		inventory.KeySKU,
		inventory.KeyName,
		inventory.KeyOnHand,
		inventory.KeyPrice,
		inventory.KeyCostPerUnit,
		inventory.KeyTotalUnitsSold,
		inventory.KeyAverageDailyUsage,
	}
	optionalColumns = []string{
		inventory.KeyImageURL,
		inventory.KeyLastSoldAt,
	}
)

func canonicalHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// columnIndex maps each known item key to the header it was read from
func columnIndex(headers []string) (map[string]string, error) {
	byCanonical := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, seen := byCanonical[canonicalHeader(h)]; !seen {
			byCanonical[canonicalHeader(h)] = h
		}
	}

	columns := make(map[string]string, len(requiredColumns)+len(optionalColumns))
	var missing []string
	for _, key := range requiredColumns {
		h, ok := byCanonical[canonicalHeader(key)]
		if !ok {
			missing = append(missing, key)
			continue
		}
		columns[key] = h
	}
	if len(missing) > 0 {
		return nil, &MissingHeadersError{Headers: missing}
	}
	for _, key := range optionalColumns {
		if h, ok := byCanonical[canonicalHeader(key)]; ok {
			columns[key] = h
		}
	}
	return columns, nil
}

// ReadInventoryCSV reads one raw item per data row. Cells stay strings so
// item normalization applies the same rules as for any other source. Empty
// optional cells are left out of the record.
func ReadInventoryCSV(r io.Reader, opts ...ParserOption) ([]inventory.RawItem, error) {
	parser, err := NewCSVParser(r, opts...)
	if err != nil {
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	columns, err := columnIndex(parser.Headers())
	if err != nil {
		return nil, err
	}

	rows, err := parser.ReadAllRows()
	if err != nil {
		return nil, err
	}

	items := make([]inventory.RawItem, 0, len(rows))
	for _, row := range rows {
		item := make(inventory.RawItem, len(columns))
		for key, header := range columns {
			value := row.Get(header)
			if value == "" && isOptional(key) {
				continue
			}
			item[key] = value
		}
		items = append(items, item)
	}
	return items, nil
}

func isOptional(key string) bool {
	for _, k := range optionalColumns {
		if k == key {
			return true
		}
	}
	return false
}

// ReadInventoryJSON reads either a JSON array of item objects or an object
// with an "items" array. Numbers are kept as json.Number.
func ReadInventoryJSON(r io.Reader) ([]inventory.RawItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory JSON: %w", err)
	}
	return DecodeInventoryJSON(data)
}

// DecodeInventoryJSON decodes inventory records already held in memory
func DecodeInventoryJSON(data []byte) ([]inventory.RawItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	if data[0] == '{' {
		var envelope struct {
			Items []inventory.RawItem `json:"items"`
		}
		if err := decodeNumbers(data, &envelope); err != nil {
			return nil, err
		}
		if envelope.Items == nil {
			return nil, errors.New("inventory JSON object has no items array")
		}
		return envelope.Items, nil
	}

	var items []inventory.RawItem
	if err := decodeNumbers(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errors.New("inventory JSON must be an array of items")
	}
	return items, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid inventory JSON: %w", err)
	}
	return nil
}

// ReadInventoryFile reads a .csv or .json inventory file
func ReadInventoryFile(path string) ([]inventory.RawItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat inventory file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadInventoryCSV(f)
	case ".json":
		return ReadInventoryJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
