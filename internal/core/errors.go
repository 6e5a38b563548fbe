package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilDataset is returned when an aggregation receives no dataset.
var ErrNilDataset = errors.New("nil dataset")

// SchemaError reports required columns missing from a dataset.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// DataTypeError reports a value that does not parse as a number in a numeric column.
// Line is the 1-based line of the source, 0 when unknown.
type DataTypeError struct {
	Column string
	Line   int
	Value  string
}

func (e *DataTypeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("column %q line %d: non-numeric value %q", e.Column, e.Line, e.Value)
	}
	return fmt.Sprintf("column %q: non-numeric value %q", e.Column, e.Value)
}

// IsSchemaError reports whether err wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsDataTypeError reports whether err wraps a DataTypeError.
func IsDataTypeError(err error) bool {
	var de *DataTypeError
	return errors.As(err, &de)
}
