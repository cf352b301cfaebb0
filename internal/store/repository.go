package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CustomHandler receives raw columns that map to no entity property, after
// the mapped columns have been decoded into entity.
type CustomHandler[T any] func(entity *T, column string, value any) error

// DefaultLimit is the page size used when Pagination.Limit is unset.
const DefaultLimit = 100

// Pagination selects a page of results.
type Pagination struct {
	Offset int
	Limit  int
}

// ListOptions tunes ListByExpression.
type ListOptions struct {
	// EstimateTotalCount reports the planner's estimate instead of running
	// COUNT(*). Dialects without an estimate fall back to the exact count.
	EstimateTotalCount bool
}

// ResultsPage is one page of a listing.
type ResultsPage[T any] struct {
	Results         []T   `json:"results"`
	TotalCount      int64 `json:"totalCount"`
	CountIsEstimate bool  `json:"countIsEstimate"`
}

// Repository executes expressions against one entity table.
type Repository[T any] struct {
	store    *Store
	meta     querysql.Metadata
	columns  []column
	byColumn map[string]column
	build    func(fields) (T, error)
}

func newRepository[T any](s *Store, meta querysql.Metadata, columns []column, build func(fields) (T, error)) *Repository[T] {
	byColumn := make(map[string]column, len(columns))
	for _, c := range columns {
		byColumn[c.name] = c
	}
	return &Repository[T]{store: s, meta: meta, columns: columns, byColumn: byColumn, build: build}
}

// Metadata returns the entity's property/column mapping.
func (r *Repository[T]) Metadata() querysql.Metadata {
	return r.meta
}

// selectList renders the mapped columns, optionally qualified by alias.
func (r *Repository[T]) selectList(alias string) string {
	parts := make([]string, len(r.columns))
	for i, c := range r.columns {
		if alias == "" {
			parts[i] = c.name
		} else {
			parts[i] = fmt.Sprintf("%s.%s AS %s", alias, c.name, c.name)
		}
	}
	return strings.Join(parts, ", ")
}

// compiledSelect is a SELECT over the entity with its WHERE parameters.
type compiledSelect struct {
	compiler *querysql.Compiler
	where    querysql.SQLExpression
	orderBy  string
}

func (r *Repository[T]) prepare(e expr.Expression, sorting []querysql.Sort) (compiledSelect, error) {
	c := querysql.NewCompiler(r.store.dialect)
	where, err := c.Compile(r.meta, e)
	if err != nil {
		return compiledSelect{}, err
	}
	orderBy, err := querysql.OrderBy(r.meta, sorting)
	if err != nil {
		return compiledSelect{}, err
	}
	return compiledSelect{compiler: c, where: where, orderBy: orderBy}, nil
}

func (cs compiledSelect) query(selectList, table string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", selectList, table, cs.where.Query, cs.orderBy)
}

// FindManyByExpression returns every matching row in sort order.
// Returns an empty slice (not nil) if nothing matches.
func (r *Repository[T]) FindManyByExpression(ctx context.Context, e expr.Expression, sorting []querysql.Sort) ([]T, error) {
	op := r.meta.Table + ".find"
	defer r.store.metrics.observe(op, time.Now())

	cs, err := r.prepare(e, sorting)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := r.queryAll(ctx, r.store.db, cs.query(r.selectList(""), r.meta.Table), cs.where.Parameters, nil)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	return items, nil
}

// FindOneByExpression returns the first match, or found=false.
func (r *Repository[T]) FindOneByExpression(ctx context.Context, e expr.Expression, sorting []querysql.Sort) (item T, found bool, err error) {
	items, err := r.FindManyByExpression(ctx, e, sorting)
	if err != nil || len(items) == 0 {
		return item, false, err
	}
	return items[0], true, nil
}

// StreamByExpression returns a lazy cursor over the matching rows.
//
// The stream is forward-only and not restartable: re-issue the call to
// read again. The caller must Close it. On SQLite the stream holds the
// only connection until closed.
func (r *Repository[T]) StreamByExpression(ctx context.Context, e expr.Expression, sorting []querysql.Sort) (*Stream[T], error) {
	op := r.meta.Table + ".stream"

	cs, err := r.prepare(e, sorting)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	query, args, err := querysql.Rebind(r.store.dialect, cs.query(r.selectList(""), r.meta.Table), cs.where.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	return newStream(rows, func(rows *sql.Rows, cols []string) (T, error) {
		return r.scan(rows, cols, nil)
	})
}

// ListByExpression returns one page and the total match count, both read in
// one transaction on the read connection so they observe the same snapshot.
//
// With EstimateTotalCount the count comes from the planner and is reported
// as max(estimate, offset+len(results)): never less than what was observed.
func (r *Repository[T]) ListByExpression(ctx context.Context, e expr.Expression, sorting []querysql.Sort, page Pagination, opts ListOptions) (ResultsPage[T], error) {
	op := r.meta.Table + ".list"
	defer r.store.metrics.observe(op, time.Now())

	cs, err := r.prepare(e, sorting)
	if err != nil {
		return ResultsPage[T]{}, fmt.Errorf("%s: %w", op, err)
	}
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	tx, err := r.store.readDB.BeginTx(ctx, &sql.TxOptions{
		Isolation: r.store.dialect.ReadIsolation(),
		ReadOnly:  true,
	})
	if err != nil {
		return ResultsPage[T]{}, wrapStorage(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	params := make(map[string]any, len(cs.where.Parameters)+2)
	for k, v := range cs.where.Parameters {
		params[k] = v
	}
	limit := cs.compiler.Param(params, page.Limit)
	offset := cs.compiler.Param(params, page.Offset)
	pageQuery := cs.query(r.selectList(""), r.meta.Table) + fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	results, err := r.queryAll(ctx, tx, pageQuery, params, nil)
	if err != nil {
		return ResultsPage[T]{}, wrapStorage(op+": rows", err)
	}

	result := ResultsPage[T]{Results: results}
	var observed int64
	if len(results) > 0 {
		observed = int64(page.Offset + len(results))
	}

	estimated := false
	if opts.EstimateTotalCount && r.store.dialect.SupportsRowEstimate() {
		estimate, ok, err := r.estimate(ctx, tx, cs)
		if err != nil {
			return ResultsPage[T]{}, wrapStorage(op+": explain", err)
		}
		if ok {
			result.TotalCount = max(estimate, observed)
			result.CountIsEstimate = true
			estimated = true
		} else {
			r.store.logger.Debug("no row estimate in plan, counting", "table", r.meta.Table)
		}
	}
	if !estimated {
		count, err := r.count(ctx, tx, cs)
		if err != nil {
			return ResultsPage[T]{}, wrapStorage(op+": count", err)
		}
		result.TotalCount = count
	}

	if err := tx.Commit(); err != nil {
		return ResultsPage[T]{}, wrapStorage(op+": commit", err)
	}
	return result, nil
}

func (r *Repository[T]) count(ctx context.Context, q querier, cs compiledSelect) (int64, error) {
	query, args, err := querysql.Rebind(r.store.dialect,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", r.meta.Table, cs.where.Query), cs.where.Parameters)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// estimate runs EXPLAIN over the unpaged query and parses its row estimate.
func (r *Repository[T]) estimate(ctx context.Context, q querier, cs compiledSelect) (int64, bool, error) {
	query, args, err := querysql.Rebind(r.store.dialect, "EXPLAIN "+cs.query(r.selectList(""), r.meta.Table), cs.where.Parameters)
	if err != nil {
		return 0, false, err
	}
	plan, err := r.store.explain(ctx, q, query, args)
	if err != nil {
		return 0, false, err
	}
	n, ok := querysql.ParseRowEstimate(plan)
	return n, ok, nil
}

// planReader runs an EXPLAIN query and returns its plan text.
type planReader func(ctx context.Context, q querier, query string, args []any) (string, error)

// readPlan joins the single-column lines of an EXPLAIN result.
func readPlan(ctx context.Context, q querier, query string, args []any) (string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", err
		}
		plan.WriteString(line)
		plan.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return plan.String(), nil
}

// queryAll runs a :pN query and decodes every row.
func (r *Repository[T]) queryAll(ctx context.Context, q querier, query string, params map[string]any, custom CustomHandler[T]) ([]T, error) {
	bound, args, err := querysql.Rebind(r.store.dialect, query, params)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	items := []T{}
	for rows.Next() {
		item, err := r.scan(rows, cols, custom)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// scan decodes the current row: mapped columns first, then unmapped ones
// through custom. An unmapped column without a handler is an AssertionError.
func (r *Repository[T]) scan(rows *sql.Rows, cols []string, custom CustomHandler[T]) (T, error) {
	var zero T

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return zero, fmt.Errorf("scan %s: %w", r.meta.Table, err)
	}

	f := make(fields, len(cols))
	var unmapped []int
	for i, name := range cols {
		c, ok := r.byColumn[name]
		if !ok {
			if custom == nil {
				return zero, &AssertionError{Table: r.meta.Table, Column: name}
			}
			unmapped = append(unmapped, i)
			continue
		}
		v, err := decodeValue(c.kind, raw[i])
		if err != nil {
			return zero, fmt.Errorf("decode %s.%s: %w", r.meta.Table, name, err)
		}
		f[c.property] = v
	}

	item, err := r.build(f)
	if err != nil {
		return zero, err
	}
	for _, i := range unmapped {
		if err := custom(&item, cols[i], raw[i]); err != nil {
			return zero, fmt.Errorf("custom column %s: %w", cols[i], err)
		}
	}
	return item, nil
}

// insert writes one row of mapped properties.
func (r *Repository[T]) insert(ctx context.Context, q querier, f fields) error {
	c := querysql.NewCompiler(r.store.dialect)
	params := make(map[string]any, len(r.columns))
	names := make([]string, len(r.columns))
	refs := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.name
		refs[i] = c.Param(params, f[col.property])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.meta.Table, strings.Join(names, ", "), strings.Join(refs, ", "))
	return execNamed(ctx, r.store.dialect, q, query, params)
}

// execNamed rebinds and executes a :pN statement.
func execNamed(ctx context.Context, d querysql.Dialect, q querier, query string, params map[string]any) error {
	_, err := execNamedResult(ctx, d, q, query, params)
	return err
}

func execNamedResult(ctx context.Context, d querysql.Dialect, q querier, query string, params map[string]any) (sql.Result, error) {
	bound, args, err := querysql.Rebind(d, query, params)
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, bound, args...)
}

// inList renders "(:pA, :pB, ...)" for values.
func inList(c *querysql.Compiler, params map[string]any, values []string) string {
	refs := make([]string, len(values))
	for i, v := range values {
		refs[i] = c.Param(params, v)
	}
	return "(" + strings.Join(refs, ", ") + ")"
}
