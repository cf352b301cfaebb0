// Package criteria models user-facing search criteria and normalizes them
// into expressions.
//
// A criterion for one field is a single value, a {from, to} range or an
// ordered list of either (meaning OR). A Record combines fields with AND;
// OrRecords combines records with OR. The OR-of-AND structure is the same
// for every entity; only the per-field leaf builders differ.
package criteria

import (
	"errors"
	"fmt"
)

// Criteria is one field's criterion.
//
// This is a sealed interface - only types in this package implement it.
type Criteria interface {
	criteria()
}

// Value matches a single value.
type Value struct {
	V any
}

func (Value) criteria() {}

// Range matches values within bounds. A nil bound is absent; at least one
// must be present.
type Range struct {
	From any
	To   any
}

func (Range) criteria() {}

// AnyOf matches if any of its criteria match.
type AnyOf []Criteria

func (AnyOf) criteria() {}

// Record maps field names to criteria. Present keys combine with AND.
type Record map[string]Criteria

// OrRecords is a list of records combined with OR.
type OrRecords []Record

// Eq is shorthand for Value{V: v}.
func Eq(v any) Value { return Value{V: v} }

// From is shorthand for an open-ended lower bound.
func From(v any) Range { return Range{From: v} }

// To is shorthand for an open-ended upper bound.
func To(v any) Range { return Range{To: v} }

// Between is shorthand for a closed range.
func Between(from, to any) Range { return Range{From: from, To: to} }

// InvalidError reports criteria whose shape does not fit the field.
type InvalidError struct {
	Field   string
	Message string
}

func (e *InvalidError) Error() string {
	if e.Field == "" {
		return "invalid criteria: " + e.Message
	}
	return fmt.Sprintf("invalid criteria for %s: %s", e.Field, e.Message)
}

// IsInvalid returns true if err is an InvalidError.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}

func invalid(field, format string, args ...any) error {
	return &InvalidError{Field: field, Message: fmt.Sprintf(format, args...)}
}
