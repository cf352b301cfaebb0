package querysql

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders the engine-specific parts of a query.
//
// Compiled SQL always uses :pN placeholders; Rebind turns them into the
// dialect's native form just before execution.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string

	// Placeholder renders the n-th positional argument (1-based).
	Placeholder(n int) string

	// Contains renders structural JSON containment of param in column.
	Contains(column, param string) string

	// JSONText renders extraction of a nested JSON value as text.
	JSONText(column string, path ...string) string

	// IntegerCast renders an aggregate as an integer, truncated toward zero.
	IntegerCast(expression string) string

	// SupportsRowEstimate reports whether EXPLAIN yields a rows=<N> estimate.
	SupportsRowEstimate() bool

	// ReadIsolation is the isolation level used for paginated listing.
	ReadIsolation() sql.IsolationLevel
}

// Postgres is the production dialect.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Contains(column, param string) string {
	return fmt.Sprintf("%s @> %s", column, param)
}

func (Postgres) JSONText(column string, path ...string) string {
	if len(path) == 0 {
		return column + "::text"
	}
	var b strings.Builder
	b.WriteString(column)
	for i, key := range path {
		if i == len(path)-1 {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString("'" + key + "'")
	}
	return b.String()
}

func (Postgres) IntegerCast(expression string) string {
	// A bare NUMERIC(30,0) cast would round.
	return fmt.Sprintf("CAST(TRUNC(%s) AS NUMERIC(30,0))", expression)
}

func (Postgres) SupportsRowEstimate() bool { return true }

func (Postgres) ReadIsolation() sql.IsolationLevel { return sql.LevelRepeatableRead }

// SQLite is the embedded dialect used for development and tests.
//
// json_contains is not built in; the store registers it as a Go function
// on every connection.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

func (SQLite) Contains(column, param string) string {
	return fmt.Sprintf("json_contains(%s, %s)", column, param)
}

func (SQLite) JSONText(column string, path ...string) string {
	return fmt.Sprintf("json_extract(%s, '$%s')", column, jsonPath(path))
}

func (SQLite) IntegerCast(expression string) string {
	return fmt.Sprintf("CAST(%s AS INTEGER)", expression)
}

// SQLite has no planner estimate; listing falls back to an exact count.
func (SQLite) SupportsRowEstimate() bool { return false }

// SQLite transactions are serializable already.
func (SQLite) ReadIsolation() sql.IsolationLevel { return sql.LevelDefault }

func jsonPath(path []string) string {
	var b strings.Builder
	for _, key := range path {
		b.WriteString(".")
		b.WriteString(key)
	}
	return b.String()
}

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres{}, nil
	case "sqlite3", "sqlite3_ledger":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}
