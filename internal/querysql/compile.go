package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ledgerdb/internal/canon"
	"github.com/roach88/ledgerdb/internal/expr"
)

// Metadata describes how an entity's properties map onto a table.
// It is built once per entity and never mutated.
type Metadata struct {
	// Table is the SQL table name.
	Table string

	// Columns maps property names to column names.
	Columns map[string]string

	// Encoders convert a property value to its stored representation before
	// it is bound (e.g. vendor field text to bytes). Optional per property.
	Encoders map[string]func(any) (any, error)
}

// Column returns the column mapped to property.
func (m Metadata) Column(property string) (string, error) {
	column, ok := m.Columns[property]
	if !ok {
		return "", &SchemaError{
			Code:     ErrCodeColumnNotFound,
			Message:  "property is not mapped to a column",
			Table:    m.Table,
			Property: property,
		}
	}
	return column, nil
}

func (m Metadata) encode(property string, v any) (any, error) {
	enc, ok := m.Encoders[property]
	if !ok {
		return v, nil
	}
	out, err := enc(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", m.Table, property, err)
	}
	return out, nil
}

// SQLExpression is a compiled predicate with its named parameters.
// Parameter keys are placeholder names without the leading colon ("p1").
type SQLExpression struct {
	Query      string
	Parameters map[string]any
}

// Compiler turns expressions into parameterized SQL.
//
// One Compiler owns one placeholder counter. Every Compile and Param call on
// the same Compiler draws from it, so fragments built for one statement
// never reuse a placeholder. Use a fresh Compiler per statement.
//
// CRITICAL: values are never interpolated into the query text.
type Compiler struct {
	dialect Dialect
	next    int
}

// NewCompiler creates a Compiler for the given dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Compile converts an optimized expression into SQL.
//
// Void must have been removed by expr.Optimize; reaching it here is an
// UNSUPPORTED_EXPRESSION error.
func (c *Compiler) Compile(m Metadata, e expr.Expression) (SQLExpression, error) {
	params := make(map[string]any)
	query, err := c.compile(m, e, params)
	if err != nil {
		return SQLExpression{}, err
	}
	return SQLExpression{Query: query, Parameters: params}, nil
}

// Param registers v under the next placeholder and returns its reference
// (":pN"). Repositories use it for values outside the expression tree.
func (c *Compiler) Param(params map[string]any, v any) string {
	c.next++
	name := "p" + strconv.Itoa(c.next)
	params[name] = v
	return ":" + name
}

func (c *Compiler) compile(m Metadata, e expr.Expression, params map[string]any) (string, error) {
	switch n := e.(type) {
	case expr.True, *expr.True:
		return "TRUE", nil
	case expr.False, *expr.False:
		return "FALSE", nil
	case expr.Equal:
		return c.compileComparison(m, n.Property, "=", n.Value, params)
	case *expr.Equal:
		return c.compileComparison(m, n.Property, "=", n.Value, params)
	case expr.GreaterThanEqual:
		return c.compileComparison(m, n.Property, ">=", n.Value, params)
	case *expr.GreaterThanEqual:
		return c.compileComparison(m, n.Property, ">=", n.Value, params)
	case expr.LessThanEqual:
		return c.compileComparison(m, n.Property, "<=", n.Value, params)
	case *expr.LessThanEqual:
		return c.compileComparison(m, n.Property, "<=", n.Value, params)
	case expr.Like:
		return c.compileComparison(m, n.Property, "LIKE", n.Pattern, params)
	case *expr.Like:
		return c.compileComparison(m, n.Property, "LIKE", n.Pattern, params)
	case expr.Between:
		return c.compileBetween(m, n, params)
	case *expr.Between:
		return c.compileBetween(m, *n, params)
	case expr.Contains:
		return c.compileContains(m, n, params)
	case *expr.Contains:
		return c.compileContains(m, *n, params)
	case expr.And:
		return c.compileConnective(m, "AND", n.Expressions, params)
	case *expr.And:
		return c.compileConnective(m, "AND", n.Expressions, params)
	case expr.Or:
		return c.compileConnective(m, "OR", n.Expressions, params)
	case *expr.Or:
		return c.compileConnective(m, "OR", n.Expressions, params)
	default:
		return "", &SchemaError{
			Code:    ErrCodeUnsupportedExpression,
			Message: fmt.Sprintf("cannot compile %T", e),
			Table:   m.Table,
		}
	}
}

// compileComparison emits "column <op> :pN".
func (c *Compiler) compileComparison(m Metadata, property, op string, value any, params map[string]any) (string, error) {
	column, err := m.Column(property)
	if err != nil {
		return "", err
	}
	v, err := m.encode(property, value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", column, op, c.Param(params, v)), nil
}

// compileBetween emits "column BETWEEN :pN AND :pM", from before to.
func (c *Compiler) compileBetween(m Metadata, b expr.Between, params map[string]any) (string, error) {
	column, err := m.Column(b.Property)
	if err != nil {
		return "", err
	}
	from, err := m.encode(b.Property, b.From)
	if err != nil {
		return "", err
	}
	to, err := m.encode(b.Property, b.To)
	if err != nil {
		return "", err
	}
	fromRef := c.Param(params, from)
	toRef := c.Param(params, to)
	return fmt.Sprintf("%s BETWEEN %s AND %s", column, fromRef, toRef), nil
}

// compileContains binds the value as canonical JSON text so both dialects
// compare the same document.
func (c *Compiler) compileContains(m Metadata, ct expr.Contains, params map[string]any) (string, error) {
	column, err := m.Column(ct.Property)
	if err != nil {
		return "", err
	}
	doc, err := canon.Marshal(ct.Value)
	if err != nil {
		return "", fmt.Errorf("compile contains %s.%s: %w", m.Table, ct.Property, err)
	}
	return c.dialect.Contains(column, c.Param(params, string(doc))), nil
}

func (c *Compiler) compileConnective(m Metadata, op string, children []expr.Expression, params map[string]any) (string, error) {
	if len(children) == 0 {
		// Only reachable when the caller skipped Optimize.
		if op == "AND" {
			return "TRUE", nil
		}
		return "FALSE", nil
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := c.compile(m, child, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", nil
}

// Compile is a convenience for compiling a single expression with a fresh
// placeholder counter.
func Compile(d Dialect, m Metadata, e expr.Expression) (SQLExpression, error) {
	return NewCompiler(d).Compile(m, e)
}
