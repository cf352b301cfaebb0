package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// SaveBlocks appends blocks and their transactions in one transaction.
// Block rows are written before transaction rows. Each transaction's block
// id and height are taken from the block carrying it.
func (r *BlockRepository) SaveBlocks(ctx context.Context, blocks []ledger.Block) error {
	op := "blocks.save"
	defer r.store.metrics.observe(op, time.Now())
	if len(blocks) == 0 {
		return nil
	}

	txRows := make([]fields, 0)
	for _, b := range blocks {
		for _, t := range b.Transactions {
			t.BlockID = b.ID
			t.BlockHeight = b.Height
			f, err := transactionToFields(r.store.codec, t)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			txRows = append(txRows, f)
		}
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, b := range blocks {
		if err := r.insert(ctx, tx, blockToFields(b)); err != nil {
			return wrapStorage(fmt.Sprintf("%s: block %s", op, b.ID), err)
		}
	}
	for _, f := range txRows {
		if err := r.store.transactions.insert(ctx, tx, f); err != nil {
			return wrapStorage(fmt.Sprintf("%s: transaction %s", op, f.str("id")), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStorage(op+": commit", err)
	}

	r.store.logger.Info("blocks saved",
		"count", len(blocks),
		"transactions", len(txRows),
		"from_height", blocks[0].Height,
		"to_height", blocks[len(blocks)-1].Height)
	return nil
}

// DeleteBlocks removes blocks, their transactions and the round records
// computed after them, in one transaction.
//
// The set must be exactly the top of the stored chain: a stored block above
// the highest given height fails with MIDDLE_DELETION, a gap or a missing
// block fails with NOT_CONTIGUOUS or COUNT_MISMATCH. Nothing is deleted on
// failure.
func (r *BlockRepository) DeleteBlocks(ctx context.Context, blocks []ledger.Block) error {
	op := "blocks.delete"
	defer r.store.metrics.observe(op, time.Now())
	if len(blocks) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(blocks))
	ids := make([]string, 0, len(blocks))
	lowest, highest := blocks[0].Height, blocks[0].Height
	for _, b := range blocks {
		if _, dup := seen[b.ID]; !dup {
			seen[b.ID] = struct{}{}
			ids = append(ids, b.ID)
		}
		lowest = min(lowest, b.Height)
		highest = max(highest, b.Height)
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	above, err := r.countHeights(ctx, tx, ">", highest)
	if err != nil {
		return wrapStorage(op+": count above", err)
	}
	if above != 0 {
		return r.corrupt(op, ErrCodeMiddleDeletion,
			fmt.Sprintf("%d stored blocks above height %d", above, highest),
			map[string]string{"highest": strconv.FormatInt(highest, 10), "above": strconv.FormatInt(above, 10)})
	}

	tail, err := r.countHeights(ctx, tx, ">=", lowest)
	if err != nil {
		return wrapStorage(op+": count tail", err)
	}
	if tail != int64(len(ids)) {
		return r.corrupt(op, ErrCodeNotContiguous,
			fmt.Sprintf("%d stored blocks from height %d, %d requested", tail, lowest, len(ids)),
			map[string]string{"lowest": strconv.FormatInt(lowest, 10), "stored": strconv.FormatInt(tail, 10), "requested": strconv.Itoa(len(ids))})
	}

	if err := r.deleteByIDs(ctx, tx, op, ids); err != nil {
		return err
	}

	fromRound := r.store.rounds.RoundOf(lowest).Round + 1
	purged, err := r.store.roundRecords.deleteWhere(ctx, tx, ">=", fromRound)
	if err != nil {
		return wrapStorage(op+": rounds", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapStorage(op+": commit", err)
	}

	r.store.metrics.rollback(op, len(ids))
	r.store.logger.Info("blocks deleted",
		"count", len(ids),
		"from_height", lowest,
		"to_height", highest,
		"rounds_from", fromRound,
		"round_records", purged)
	return nil
}

// DeleteTopBlocks removes the highest count blocks, their transactions and
// every round record after the round of the new tip, in one transaction.
func (r *BlockRepository) DeleteTopBlocks(ctx context.Context, count int) error {
	op := "blocks.delete_top"
	defer r.store.metrics.observe(op, time.Now())
	if count < 0 {
		return fmt.Errorf("%s: negative count %d", op, count)
	}
	if count == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	var rawMax any
	if err := tx.QueryRowContext(ctx, "SELECT MAX(height) FROM blocks").Scan(&rawMax); err != nil {
		return wrapStorage(op+": max height", err)
	}
	maxHeight, err := toInt64(rawMax)
	if err != nil {
		return fmt.Errorf("%s: max height: %w", op, err)
	}

	target := maxHeight - int64(count)
	targetRound := r.store.rounds.RoundOf(target).Round

	ids, err := r.idsAbove(ctx, tx, target)
	if err != nil {
		return wrapStorage(op+": select ids", err)
	}
	if len(ids) != count {
		return r.corrupt(op, ErrCodeCountMismatch,
			fmt.Sprintf("%d blocks above height %d, expected %d", len(ids), target, count),
			map[string]string{"target": strconv.FormatInt(target, 10), "found": strconv.Itoa(len(ids)), "expected": strconv.Itoa(count)})
	}

	if err := r.deleteByIDs(ctx, tx, op, ids); err != nil {
		return err
	}

	purged, err := r.store.roundRecords.deleteWhere(ctx, tx, ">", targetRound)
	if err != nil {
		return wrapStorage(op+": rounds", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapStorage(op+": commit", err)
	}

	r.store.metrics.rollback(op, count)
	r.store.logger.Info("top blocks deleted",
		"count", count,
		"new_height", target,
		"rounds_after", targetRound,
		"round_records", purged)
	return nil
}

// deleteByIDs removes the transactions, then the blocks, with the given
// ids. Fewer deleted blocks than ids is COUNT_MISMATCH.
func (r *BlockRepository) deleteByIDs(ctx context.Context, tx *sql.Tx, op string, ids []string) error {
	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	in := inList(c, params, ids)

	if err := execNamed(ctx, r.store.dialect, tx, "DELETE FROM transactions WHERE block_id IN "+in, params); err != nil {
		return wrapStorage(op+": transactions", err)
	}
	res, err := execNamedResult(ctx, r.store.dialect, tx, "DELETE FROM blocks WHERE id IN "+in, params)
	if err != nil {
		return wrapStorage(op+": blocks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage(op+": rows affected", err)
	}
	if n != int64(len(ids)) {
		return r.corrupt(op, ErrCodeCountMismatch,
			fmt.Sprintf("deleted %d blocks, expected %d", n, len(ids)),
			map[string]string{"deleted": strconv.FormatInt(n, 10), "expected": strconv.Itoa(len(ids))})
	}
	return nil
}

func (r *BlockRepository) countHeights(ctx context.Context, q querier, cmp string, height int64) (int64, error) {
	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query, args, err := querysql.Rebind(r.store.dialect,
		fmt.Sprintf("SELECT COUNT(*) FROM blocks WHERE height %s %s", cmp, c.Param(params, height)), params)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *BlockRepository) idsAbove(ctx context.Context, q querier, height int64) ([]string, error) {
	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query, args, err := querysql.Rebind(r.store.dialect,
		fmt.Sprintf("SELECT id FROM blocks WHERE height > %s ORDER BY height", c.Param(params, height)), params)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// corrupt builds, records and logs a CorruptionError.
func (r *BlockRepository) corrupt(op string, code CorruptionCode, msg string, details map[string]string) error {
	err := &CorruptionError{Code: code, Message: msg, Op: op, Details: details}
	r.store.metrics.corruption(code)
	r.store.logger.Error("ledger corruption", "op", op, "code", string(code), "error", msg)
	return err
}
