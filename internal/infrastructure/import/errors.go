package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Import error codes
const (
	ErrCodeImportInvalidFile     = "ERR_IMPORT_INVALID_FILE"
	ErrCodeImportInvalidEncoding = "ERR_IMPORT_INVALID_ENCODING"
	ErrCodeImportMissingHeader   = "ERR_IMPORT_MISSING_HEADER"
	ErrCodeImportMalformedRow    = "ERR_IMPORT_MALFORMED_ROW"
)

// Common import errors
var (
	// ErrEmptyFile is returned when the input is empty
	ErrEmptyFile = errors.New("inventory file is empty")

	// ErrInvalidEncoding is returned when the input is not UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when the CSV file has no header row
	ErrMissingHeader = errors.New("CSV file missing header row")

	// ErrFileTooLarge is returned when the input exceeds the size limit
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON
	ErrUnsupportedFormat = errors.New("unsupported inventory file format")
)

// RowError represents an error in a specific row
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// NewRowError creates a new RowError
func NewRowError(row int, column, code, message string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
	}
}

// MissingHeadersError lists required columns absent from the header row
type MissingHeadersError struct {
	Headers []string
}

// Error implements the error interface
func (e *MissingHeadersError) Error() string {
	return "CSV file missing required columns: " + strings.Join(e.Headers, ", ")
}

// Unwrap lets errors.Is(err, ErrMissingHeader) match
func (e *MissingHeadersError) Unwrap() error {
	return ErrMissingHeader
}
