package store

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/filter"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// BlockRepository stores blocks and owns the structural ledger operations.
type BlockRepository struct {
	*Repository[ledger.Block]
	filter *filter.BlockFilter
}

func newBlockRepository(s *Store) *BlockRepository {
	return &BlockRepository{
		Repository: newRepository(s, blockMetadata, blockColumns, blockFromFields),
		filter:     filter.NewBlockFilter(),
	}
}

var byHeightAsc = []querysql.Sort{querysql.Asc("height")}
var byHeightDesc = []querysql.Sort{querysql.Desc("height")}

// FindByID returns the block with id.
func (r *BlockRepository) FindByID(ctx context.Context, id string) (ledger.Block, bool, error) {
	return r.FindOneByExpression(ctx, expr.Equal{Property: "id", Value: id}, nil)
}

// FindByIDs returns the blocks with the given ids, by height.
func (r *BlockRepository) FindByIDs(ctx context.Context, ids []string) ([]ledger.Block, error) {
	return r.FindManyByExpression(ctx, anyEqual("id", ids), byHeightAsc)
}

// FindByHeight returns the block at height.
func (r *BlockRepository) FindByHeight(ctx context.Context, height int64) (ledger.Block, bool, error) {
	return r.FindOneByExpression(ctx, expr.Equal{Property: "height", Value: height}, nil)
}

// FindByHeights returns the blocks at the given heights, by height.
func (r *BlockRepository) FindByHeights(ctx context.Context, heights []int64) ([]ledger.Block, error) {
	return r.FindManyByExpression(ctx, anyEqual("height", heights), byHeightAsc)
}

// FindByHeightRange returns blocks with start <= height <= end, by height.
func (r *BlockRepository) FindByHeightRange(ctx context.Context, start, end int64) ([]ledger.Block, error) {
	return r.FindManyByExpression(ctx, expr.Between{Property: "height", From: start, To: end}, byHeightAsc)
}

// FindByHeightRangeWithTransactions is FindByHeightRange with each block's
// transactions attached in sequence order.
func (r *BlockRepository) FindByHeightRangeWithTransactions(ctx context.Context, start, end int64) ([]ledger.Block, error) {
	blocks, err := r.FindByHeightRange(ctx, start, end)
	if err != nil || len(blocks) == 0 {
		return blocks, err
	}

	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	txs, err := r.store.transactions.FindByBlockIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byBlock := make(map[string][]ledger.Transaction, len(blocks))
	for _, tx := range txs {
		byBlock[tx.BlockID] = append(byBlock[tx.BlockID], tx)
	}
	for i := range blocks {
		blocks[i].Transactions = byBlock[blocks[i].ID]
	}
	return blocks, nil
}

// FindLatest returns the highest block.
func (r *BlockRepository) FindLatest(ctx context.Context) (ledger.Block, bool, error) {
	op := "blocks.latest"
	defer r.store.metrics.observe(op, time.Now())

	c := querysql.NewCompiler(r.store.dialect)
	params := map[string]any{}
	query := fmt.Sprintf("SELECT %s FROM blocks ORDER BY height DESC LIMIT %s", r.selectList(""), c.Param(params, 1))
	items, err := r.queryAll(ctx, r.store.db, query, params, nil)
	if err != nil {
		return ledger.Block{}, false, wrapStorage(op, err)
	}
	if len(items) == 0 {
		return ledger.Block{}, false, nil
	}
	return items[0], true, nil
}

// FindRecent returns the newest limit blocks, newest first.
func (r *BlockRepository) FindRecent(ctx context.Context, limit int) ([]ledger.Block, error) {
	page, err := r.ListByExpression(ctx, expr.True{}, byHeightDesc, Pagination{Limit: limit}, ListOptions{EstimateTotalCount: true})
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// FindTop returns the newest limit blocks, oldest first.
func (r *BlockRepository) FindTop(ctx context.Context, limit int) ([]ledger.Block, error) {
	blocks, err := r.FindRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(blocks)
	return blocks, nil
}

// FindCommon returns the stored blocks among ids, highest first. Used to
// find the last block shared with a peer.
func (r *BlockRepository) FindCommon(ctx context.Context, ids []string) ([]ledger.Block, error) {
	return r.FindManyByExpression(ctx, anyEqual("id", ids), byHeightDesc)
}

// Search lists blocks matching records.
func (r *BlockRepository) Search(ctx context.Context, records criteria.OrRecords, sorting []querysql.Sort, page Pagination, opts ListOptions) (ResultsPage[ledger.Block], error) {
	e, err := r.filter.Expression(ctx, records)
	if err != nil {
		return ResultsPage[ledger.Block]{}, err
	}
	return r.ListByExpression(ctx, e, sorting, page, opts)
}

// Count returns the number of stored blocks.
func (r *BlockRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks").Scan(&n); err != nil {
		return 0, wrapStorage("blocks.count", err)
	}
	return n, nil
}

// Statistics summarizes the stored chain.
type Statistics struct {
	Count                int64  `json:"count"`
	NumberOfTransactions int64  `json:"numberOfTransactions"`
	TotalFee             string `json:"totalFee"`
	TotalAmount          string `json:"totalAmount"`
	TotalReward          string `json:"totalReward"`
}

// GetStatistics sums block totals over the whole chain.
func (r *BlockRepository) GetStatistics(ctx context.Context) (Statistics, error) {
	op := "blocks.statistics"
	defer r.store.metrics.observe(op, time.Now())

	var count, txs, fee, amount, reward any
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(number_of_transactions), 0), COALESCE(SUM(total_fee), 0),
			COALESCE(SUM(total_amount), 0), COALESCE(SUM(reward), 0)
		FROM blocks
	`).Scan(&count, &txs, &fee, &amount, &reward)
	if err != nil {
		return Statistics{}, wrapStorage(op, err)
	}

	var stats Statistics
	if stats.Count, err = toInt64(count); err != nil {
		return Statistics{}, fmt.Errorf("%s: %w", op, err)
	}
	if stats.NumberOfTransactions, err = toInt64(txs); err != nil {
		return Statistics{}, fmt.Errorf("%s: %w", op, err)
	}
	if stats.TotalFee, err = bigString(fee); err != nil {
		return Statistics{}, fmt.Errorf("%s: %w", op, err)
	}
	if stats.TotalAmount, err = bigString(amount); err != nil {
		return Statistics{}, fmt.Errorf("%s: %w", op, err)
	}
	if stats.TotalReward, err = bigString(reward); err != nil {
		return Statistics{}, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

// ForgerStatistics aggregates the blocks of one generator.
type ForgerStatistics struct {
	GeneratorPublicKey string `json:"generatorPublicKey"`
	Blocks             int64  `json:"blocks"`
	TotalFees          string `json:"totalFees"`
	TotalRewards       string `json:"totalRewards"`
	LastHeight         int64  `json:"lastHeight"`
}

// GetDelegatesForgedBlocks aggregates forged blocks per generator, ordered
// by public key.
func (r *BlockRepository) GetDelegatesForgedBlocks(ctx context.Context) ([]ForgerStatistics, error) {
	op := "blocks.forgers"
	defer r.store.metrics.observe(op, time.Now())

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT generator_public_key, COUNT(*), SUM(total_fee), SUM(reward), MAX(height)
		FROM blocks
		GROUP BY generator_public_key
		ORDER BY generator_public_key
	`)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	defer rows.Close()

	out := []ForgerStatistics{}
	for rows.Next() {
		var (
			fs                        ForgerStatistics
			count, fees, rewards, top any
		)
		if err := rows.Scan(&fs.GeneratorPublicKey, &count, &fees, &rewards, &top); err != nil {
			return nil, wrapStorage(op, err)
		}
		if fs.Blocks, err = toInt64(count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if fs.LastHeight, err = toInt64(top); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if fs.TotalFees, err = bigString(fees); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if fs.TotalRewards, err = bigString(rewards); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(op, err)
	}
	return out, nil
}

// BlockReward is the reward of one block.
type BlockReward struct {
	Height             int64  `json:"height"`
	GeneratorPublicKey string `json:"generatorPublicKey"`
	Reward             string `json:"reward"`
}

// GetBlockRewards returns per-block rewards (reward plus fees) for
// start <= height <= end, by height.
func (r *BlockRepository) GetBlockRewards(ctx context.Context, start, end int64) ([]BlockReward, error) {
	blocks, err := r.FindByHeightRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]BlockReward, len(blocks))
	for i, b := range blocks {
		total := new(big.Int)
		if b.Reward != nil {
			total.Add(total, b.Reward)
		}
		if b.TotalFee != nil {
			total.Add(total, b.TotalFee)
		}
		out[i] = BlockReward{Height: b.Height, GeneratorPublicKey: b.GeneratorPublicKey, Reward: total.String()}
	}
	return out, nil
}

func bigString(raw any) (string, error) {
	n, err := toBig(raw)
	if err != nil {
		return "", err
	}
	return bigText(n), nil
}

// anyEqual ORs Equal over values. No values is False.
func anyEqual[V any](property string, values []V) expr.Expression {
	children := make([]expr.Expression, len(values))
	for i, v := range values {
		children[i] = expr.Equal{Property: property, Value: v}
	}
	return expr.Optimize(expr.Or{Expressions: children})
}
