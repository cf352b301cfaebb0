package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// LockBalance is the summed amount of HTLC locks for one wallet key: the
// recipient id for claims, the sender public key for refunds.
type LockBalance struct {
	Key    string `json:"key"`
	Amount string `json:"amount"`
}

// lockReferences renders the subquery selecting lock ids referenced by
// transactions of type typ under asset.<key>.lockTransactionId.
func lockReferences(d querysql.Dialect, c *querysql.Compiler, params map[string]any, typ int, key string) string {
	ref := d.JSONText("asset", key, "lockTransactionId")
	return fmt.Sprintf("SELECT %s FROM transactions WHERE type_group = %s AND type = %s AND %s IS NOT NULL",
		ref, c.Param(params, ledger.TypeGroupCore), c.Param(params, typ), ref)
}

// locksWhere renders the predicate selecting HTLC lock rows.
func locksWhere(c *querysql.Compiler, params map[string]any) string {
	return fmt.Sprintf("type_group = %s AND type = %s", c.Param(params, ledger.TypeGroupCore), c.Param(params, ledger.TypeHtlcLock))
}

// GetOpenHtlcLocks returns the locks no claim or refund references, in
// chain order.
func (r *TransactionRepository) GetOpenHtlcLocks(ctx context.Context) ([]ledger.Transaction, error) {
	op := "transactions.open_htlc_locks"
	defer r.store.metrics.observe(op, time.Now())

	d := r.store.dialect
	c := querysql.NewCompiler(d)
	params := map[string]any{}
	query := fmt.Sprintf(`SELECT %s FROM transactions
		WHERE %s
		AND id NOT IN (%s)
		AND id NOT IN (%s)
		ORDER BY block_height, sequence`,
		r.selectList(""),
		locksWhere(c, params),
		lockReferences(d, c, params, ledger.TypeHtlcClaim, "claim"),
		lockReferences(d, c, params, ledger.TypeHtlcRefund, "refund"))

	locks, err := r.queryAll(ctx, r.store.db, query, params, nil)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	return locks, nil
}

// GetClaimedHtlcLockBalances sums claimed lock amounts by recipient id.
func (r *TransactionRepository) GetClaimedHtlcLockBalances(ctx context.Context) ([]LockBalance, error) {
	return r.lockBalances(ctx, "transactions.claimed_htlc_balances", "recipient_id", ledger.TypeHtlcClaim, "claim")
}

// GetRefundedHtlcLockBalances sums refunded lock amounts by sender public key.
func (r *TransactionRepository) GetRefundedHtlcLockBalances(ctx context.Context) ([]LockBalance, error) {
	return r.lockBalances(ctx, "transactions.refunded_htlc_balances", "sender_public_key", ledger.TypeHtlcRefund, "refund")
}

func (r *TransactionRepository) lockBalances(ctx context.Context, op, groupBy string, typ int, key string) ([]LockBalance, error) {
	defer r.store.metrics.observe(op, time.Now())

	d := r.store.dialect
	c := querysql.NewCompiler(d)
	params := map[string]any{}
	query := fmt.Sprintf(`SELECT %s, SUM(amount) FROM transactions
		WHERE %s AND id IN (%s)
		GROUP BY %s
		ORDER BY %s`,
		groupBy, locksWhere(c, params), lockReferences(d, c, params, typ, key), groupBy, groupBy)

	bound, args, err := querysql.Rebind(d, query, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := r.store.db.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	defer rows.Close()

	out := []LockBalance{}
	for rows.Next() {
		var groupKey, sum any
		if err := rows.Scan(&groupKey, &sum); err != nil {
			return nil, wrapStorage(op, err)
		}
		k, err := decodeValue(kindText, groupKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		amount, err := bigString(sum)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, LockBalance{Key: k.(string), Amount: amount})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(op, err)
	}
	return out, nil
}

// GetUnlocks returns every claim or refund referencing one of lockIDs, in
// chain order.
func (r *TransactionRepository) GetUnlocks(ctx context.Context, lockIDs []string) ([]ledger.Transaction, error) {
	if len(lockIDs) == 0 {
		return []ledger.Transaction{}, nil
	}

	var alternatives []expr.Expression
	for _, unlock := range []struct {
		typ int
		key string
	}{{ledger.TypeHtlcClaim, "claim"}, {ledger.TypeHtlcRefund, "refund"}} {
		refs := make([]expr.Expression, len(lockIDs))
		for i, id := range lockIDs {
			refs[i] = expr.Contains{
				Property: "asset",
				Value:    map[string]any{unlock.key: map[string]any{"lockTransactionId": id}},
			}
		}
		alternatives = append(alternatives, expr.NewAnd(
			expr.Equal{Property: "typeGroup", Value: ledger.TypeGroupCore},
			expr.Equal{Property: "type", Value: unlock.typ},
			expr.NewOr(refs...),
		))
	}
	return r.FindManyByExpression(ctx, expr.Optimize(expr.NewOr(alternatives...)), canonicalOrder)
}
