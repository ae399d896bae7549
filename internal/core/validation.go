package core

// validation.go provides the structural checks applied before business rules.
//
// Validation happens at two levels:
//  1. Header validation: every reportable column must be present in the file
//  2. Cell validation: each cell must coerce to its column's logical type and
//     respect nullability
//
// Business rules (dates, groups, geometry) live in the validation package and
// build on these helpers.

import (
	"fmt"
	"strings"
)

// Cell validation codes. The column name is appended after a colon so the
// ledger identifies the offending column.
const (
	CodeNotNullable = "not_nullable"
	CodeInvalidType = "invalid_type"
)

// ColumnCode builds a column-scoped finding code such as "invalid_type:X".
func ColumnCode(code, column string) string {
	return code + ":" + column
}

// BaseCode strips the column suffix from a column-scoped code.
func BaseCode(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		return code[:i]
	}
	return code
}

// CellError describes why a single cell failed validation.
type CellError struct {
	Column  string
	Value   string
	Code    string
	Message string
}

func (e CellError) Error() string {
	return fmt.Sprintf("%s: %s", e.Column, e.Message)
}

// ValidateCell checks a cleaned cell against its column descriptor.
// Returns nil when the cell conforms.
func ValidateCell(value string, col ColumnDescriptor) *CellError {
	if value == "" {
		if col.Nullable {
			return nil
		}
		return &CellError{
			Column:  col.Name,
			Code:    ColumnCode(CodeNotNullable, col.Name),
			Message: "required field is empty",
		}
	}

	v, ok := Coerce(value, col.Type)
	if !ok {
		return &CellError{
			Column:  col.Name,
			Value:   value,
			Code:    ColumnCode(CodeInvalidType, col.Name),
			Message: fmt.Sprintf("invalid %s value %q", col.Type, value),
		}
	}

	// An unparseable date coerces to null; nullability decides.
	if v == nil && !col.Nullable {
		return &CellError{
			Column:  col.Name,
			Value:   value,
			Code:    ColumnCode(CodeNotNullable, col.Name),
			Message: fmt.Sprintf("unparseable %s value %q coerced to null", col.Type, value),
		}
	}
	return nil
}

// MissingColumns returns the required columns absent from the header, in
// the order they are required. Header cells are cleaned before comparison.
func MissingColumns(header, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[CleanCell(h)] = true
	}

	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
