package querysql

import (
	"errors"
	"fmt"
)

// SchemaError reports an expression that does not fit the entity metadata.
//
// Schema errors are programmer errors: they are never retried and should
// surface on first use.
type SchemaError struct {
	// Code identifies the error category.
	Code SchemaErrorCode

	// Message is a human-readable description.
	Message string

	// Table is the entity table being compiled against.
	Table string

	// Property is the offending property, if any.
	Property string
}

// SchemaErrorCode categorizes schema errors.
type SchemaErrorCode string

const (
	// ErrCodeColumnNotFound indicates a property with no mapped column.
	ErrCodeColumnNotFound SchemaErrorCode = "COLUMN_NOT_FOUND"

	// ErrCodeUnsupportedExpression indicates a node the compiler cannot emit,
	// such as a Void that survived optimization.
	ErrCodeUnsupportedExpression SchemaErrorCode = "UNSUPPORTED_EXPRESSION"
)

func (e *SchemaError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s (table=%s, property=%s)", e.Code, e.Message, e.Table, e.Property)
	}
	return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
}

// IsColumnNotFound returns true if err is a COLUMN_NOT_FOUND schema error.
func IsColumnNotFound(err error) bool {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Code == ErrCodeColumnNotFound
	}
	return false
}

// IsUnsupportedExpression returns true if err is an UNSUPPORTED_EXPRESSION
// schema error.
func IsUnsupportedExpression(err error) bool {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Code == ErrCodeUnsupportedExpression
	}
	return false
}
