package criteria

import (
	"context"

	"github.com/roach88/ledgerdb/internal/expr"
)

// Handler turns one field's Value or Range criterion into an expression.
// AnyOf never reaches a Handler; HandleCriteria expands it first.
type Handler func(ctx context.Context, c Criteria) (expr.Expression, error)

// Field pairs a declared field name with its handler.
type Field struct {
	Name   string
	Handle Handler
}

// HandleCriteria applies h to c, expanding lists into Or.
func HandleCriteria(ctx context.Context, c Criteria, h Handler) (expr.Expression, error) {
	list, ok := c.(AnyOf)
	if !ok {
		return h(ctx, c)
	}

	children := make([]expr.Expression, 0, len(list))
	for _, item := range list {
		e, err := HandleCriteria(ctx, item, h)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return expr.Or{Expressions: children}, nil
}

// HandleRecord ANDs the declared fields present in r, in declaration order.
// Keys that are not declared contribute nothing.
func HandleRecord(ctx context.Context, r Record, fields []Field) (expr.Expression, error) {
	children := make([]expr.Expression, 0, len(fields))
	for _, f := range fields {
		c, ok := r[f.Name]
		if !ok || c == nil {
			continue
		}
		e, err := HandleCriteria(ctx, c, f.Handle)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return expr.And{Expressions: children}, nil
}

// HandleOrRecords ORs the expressions built by and for each record.
func HandleOrRecords(ctx context.Context, records OrRecords, and func(context.Context, Record) (expr.Expression, error)) (expr.Expression, error) {
	children := make([]expr.Expression, 0, len(records))
	for _, r := range records {
		e, err := and(ctx, r)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return expr.Or{Expressions: children}, nil
}

// Equal builds Equal leaves; ranges are rejected.
func Equal(property string) Handler {
	return func(_ context.Context, c Criteria) (expr.Expression, error) {
		v, ok := c.(Value)
		if !ok {
			return nil, invalid(property, "expected a value, got %T", c)
		}
		return expr.Equal{Property: property, Value: v.V}, nil
	}
}

// Numeric builds Equal for values and Between/GreaterThanEqual/LessThanEqual
// for ranges.
func Numeric(property string) Handler {
	return func(_ context.Context, c Criteria) (expr.Expression, error) {
		switch v := c.(type) {
		case Value:
			return expr.Equal{Property: property, Value: v.V}, nil
		case Range:
			switch {
			case v.From != nil && v.To != nil:
				return expr.Between{Property: property, From: v.From, To: v.To}, nil
			case v.From != nil:
				return expr.GreaterThanEqual{Property: property, Value: v.From}, nil
			case v.To != nil:
				return expr.LessThanEqual{Property: property, Value: v.To}, nil
			default:
				return nil, invalid(property, "range needs from or to")
			}
		default:
			return nil, invalid(property, "unexpected %T", c)
		}
	}
}

// Like builds Like leaves from text values. The pattern is used as given.
func Like(property string) Handler {
	return func(_ context.Context, c Criteria) (expr.Expression, error) {
		v, ok := c.(Value)
		if !ok {
			return nil, invalid(property, "expected a pattern, got %T", c)
		}
		pattern, ok := v.V.(string)
		if !ok {
			return nil, invalid(property, "pattern must be text, got %T", v.V)
		}
		return expr.Like{Property: property, Pattern: pattern}, nil
	}
}

// Contains builds JSON containment leaves.
func Contains(property string) Handler {
	return func(_ context.Context, c Criteria) (expr.Expression, error) {
		v, ok := c.(Value)
		if !ok {
			return nil, invalid(property, "expected a document, got %T", c)
		}
		return expr.Contains{Property: property, Value: v.V}, nil
	}
}
