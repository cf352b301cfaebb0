package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// RoundRepository stores per-round delegate balance snapshots.
type RoundRepository struct {
	*Repository[ledger.Round]
}

func newRoundRepository(s *Store) *RoundRepository {
	return &RoundRepository{Repository: newRepository(s, roundMetadata, roundColumns, roundFromFields)}
}

// SaveRounds writes the snapshots of one or more rounds in one transaction.
// A (round, publicKey) pair already stored fails the whole call.
func (r *RoundRepository) SaveRounds(ctx context.Context, rounds []ledger.Round) error {
	op := "rounds.save"
	defer r.store.metrics.observe(op, time.Now())
	if len(rounds) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, rd := range rounds {
		if err := r.insert(ctx, tx, roundToFields(rd)); err != nil {
			return wrapStorage(fmt.Sprintf("%s: round %d %s", op, rd.Round, rd.PublicKey), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapStorage(op+": commit", err)
	}

	r.store.logger.Debug("rounds saved", "count", len(rounds), "round", rounds[0].Round)
	return nil
}

// FindByRound returns the snapshot of round, highest balance first.
func (r *RoundRepository) FindByRound(ctx context.Context, round int64) ([]ledger.Round, error) {
	return r.FindManyByExpression(ctx, expr.Equal{Property: "round", Value: round},
		[]querysql.Sort{querysql.Desc("balance"), querysql.Asc("publicKey")})
}

// GetLatestRound returns the highest stored round number, or 0.
func (r *RoundRepository) GetLatestRound(ctx context.Context) (int64, error) {
	var raw any
	if err := r.store.db.QueryRowContext(ctx, "SELECT MAX(round) FROM rounds").Scan(&raw); err != nil {
		return 0, wrapStorage("rounds.latest", err)
	}
	return toInt64(raw)
}

// DeleteFrom removes every round record with round >= round.
func (r *RoundRepository) DeleteFrom(ctx context.Context, round int64) (int64, error) {
	op := "rounds.delete"
	defer r.store.metrics.observe(op, time.Now())

	n, err := r.deleteWhere(ctx, r.store.db, ">=", round)
	if err != nil {
		return 0, wrapStorage(op, err)
	}
	r.store.logger.Info("rounds deleted", "from_round", round, "records", n)
	return n, nil
}

// deleteWhere removes round records whose round compares to round with cmp.
func (r *RoundRepository) deleteWhere(ctx context.Context, q querier, cmp string, round int64) (int64, error) {
	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query := fmt.Sprintf("DELETE FROM rounds WHERE round %s %s", cmp, c.Param(params, round))
	res, err := execNamedResult(ctx, r.store.dialect, q, query, params)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
