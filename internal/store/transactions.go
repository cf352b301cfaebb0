package store

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/filter"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// TransactionRepository stores transactions and derives HTLC lock state.
type TransactionRepository struct {
	*Repository[ledger.Transaction]
	filter *filter.TransactionFilter
}

func newTransactionRepository(s *Store) *TransactionRepository {
	build := func(f fields) (ledger.Transaction, error) {
		return transactionFromFields(s.codec, f)
	}
	return &TransactionRepository{
		Repository: newRepository(s, transactionMetadata, transactionColumns, build),
		filter:     filter.NewTransactionFilter(s.wallets, s.logger),
	}
}

var canonicalOrder = []querysql.Sort{querysql.Asc("blockHeight"), querysql.Asc("sequence")}

// FindByID returns the transaction with id.
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (ledger.Transaction, bool, error) {
	return r.FindOneByExpression(ctx, expr.Equal{Property: "id", Value: id}, nil)
}

// FindByIDs returns the transactions with the given ids in chain order.
func (r *TransactionRepository) FindByIDs(ctx context.Context, ids []string) ([]ledger.Transaction, error) {
	return r.FindManyByExpression(ctx, anyEqual("id", ids), canonicalOrder)
}

// FindByBlockIDs returns the transactions of the given blocks in chain order.
func (r *TransactionRepository) FindByBlockIDs(ctx context.Context, blockIDs []string) ([]ledger.Transaction, error) {
	return r.FindManyByExpression(ctx, anyEqual("blockId", blockIDs), canonicalOrder)
}

// TimestampedTransaction pairs a transaction with its block's timestamp.
type TimestampedTransaction struct {
	ledger.Transaction
	BlockTimestamp int64 `json:"blockTimestamp"`
}

// FindByIDsWithBlockTimestamp returns the transactions with the given ids,
// each with the timestamp of the block it was forged in.
func (r *TransactionRepository) FindByIDsWithBlockTimestamp(ctx context.Context, ids []string) ([]TimestampedTransaction, error) {
	op := "transactions.find_with_block_timestamp"
	defer r.store.metrics.observe(op, time.Now())
	if len(ids) == 0 {
		return []TimestampedTransaction{}, nil
	}

	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query := fmt.Sprintf(`SELECT %s, b.timestamp AS block_timestamp
		FROM transactions t JOIN blocks b ON b.id = t.block_id
		WHERE t.id IN %s
		ORDER BY t.block_height, t.sequence`, r.selectList("t"), inList(c, params, ids))

	stamps := make(map[string]int64, len(ids))
	custom := func(tx *ledger.Transaction, column string, value any) error {
		if column != "block_timestamp" {
			return &AssertionError{Table: "transactions", Column: column}
		}
		ts, err := toInt64(value)
		if err != nil {
			return err
		}
		stamps[tx.ID] = ts
		return nil
	}

	txs, err := r.queryAll(ctx, r.store.db, query, params, custom)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	out := make([]TimestampedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = TimestampedTransaction{Transaction: tx, BlockTimestamp: stamps[tx.ID]}
	}
	return out, nil
}

// Search lists transactions matching records.
func (r *TransactionRepository) Search(ctx context.Context, records criteria.OrRecords, sorting []querysql.Sort, page Pagination, opts ListOptions) (ResultsPage[ledger.Transaction], error) {
	e, err := r.filter.Expression(ctx, records)
	if err != nil {
		return ResultsPage[ledger.Transaction]{}, err
	}
	return r.ListByExpression(ctx, e, withDefaultOrder(sorting), page, opts)
}

// Stream returns a cursor over every transaction matching records.
func (r *TransactionRepository) Stream(ctx context.Context, records criteria.OrRecords, sorting []querysql.Sort) (*Stream[ledger.Transaction], error) {
	e, err := r.filter.Expression(ctx, records)
	if err != nil {
		return nil, err
	}
	return r.StreamByExpression(ctx, e, withDefaultOrder(sorting))
}

func withDefaultOrder(sorting []querysql.Sort) []querysql.Sort {
	if len(sorting) == 0 {
		return canonicalOrder
	}
	return sorting
}

// GetCountOfTransactions returns the number of stored transactions.
func (r *TransactionRepository) GetCountOfTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, wrapStorage("transactions.count", err)
	}
	return n, nil
}

// FindForgedTransactionIDs returns the subset of ids already stored.
func (r *TransactionRepository) FindForgedTransactionIDs(ctx context.Context, ids []string) ([]string, error) {
	op := "transactions.forged_ids"
	defer r.store.metrics.observe(op, time.Now())
	if len(ids) == 0 {
		return []string{}, nil
	}

	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query, args, err := querysql.Rebind(r.store.dialect,
		"SELECT id FROM transactions WHERE id IN "+inList(c, params, ids)+" ORDER BY block_height, sequence", params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	defer rows.Close()

	forged := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStorage(op, err)
		}
		forged = append(forged, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(op, err)
	}
	return forged, nil
}

// FeeStatistics aggregates fees for one transaction kind. Amounts are
// decimal strings; Avg is truncated toward zero on every dialect.
type FeeStatistics struct {
	TypeGroup int    `json:"typeGroup"`
	Type      int    `json:"type"`
	Avg       string `json:"avg"`
	Min       string `json:"min"`
	Max       string `json:"max"`
	Sum       string `json:"sum"`
}

// GetFeeStatistics aggregates fees of transactions with timestamp >= since
// and fee >= minFee, grouped by type group and type.
func (r *TransactionRepository) GetFeeStatistics(ctx context.Context, since int64, minFee *big.Int) ([]FeeStatistics, error) {
	op := "transactions.fee_statistics"
	defer r.store.metrics.observe(op, time.Now())

	d := r.store.dialect
	c := querysql.NewCompiler(d)
	params := map[string]any{}
	query := fmt.Sprintf(`SELECT type_group, type, %s, MIN(fee), MAX(fee), SUM(fee)
		FROM transactions
		WHERE timestamp >= %s AND fee >= %s
		GROUP BY type_group, type
		ORDER BY type_group, type`,
		d.IntegerCast("AVG(fee)"), c.Param(params, since), c.Param(params, bigText(minFee)))

	bound, args, err := querysql.Rebind(d, query, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := r.store.db.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	defer rows.Close()

	out := []FeeStatistics{}
	for rows.Next() {
		var (
			fs                  FeeStatistics
			avg, lo, hi, sum    any
			typeGroup, typeCode int64
		)
		if err := rows.Scan(&typeGroup, &typeCode, &avg, &lo, &hi, &sum); err != nil {
			return nil, wrapStorage(op, err)
		}
		fs.TypeGroup, fs.Type = int(typeGroup), int(typeCode)
		for _, p := range []struct {
			dst *string
			raw any
		}{{&fs.Avg, avg}, {&fs.Min, lo}, {&fs.Max, hi}, {&fs.Sum, sum}} {
			if *p.dst, err = bigString(p.raw); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(op, err)
	}
	return out, nil
}
