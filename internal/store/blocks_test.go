package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
	"github.com/roach88/ledgerdb/internal/testutil"
)

func TestBlocks_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder().WithReward(200)
	b.Add(testutil.Transfer("pkA", "AddrB", 1000, 10))
	b.Forge()
	blocks := saveChain(t, s, b)

	got, found, err := s.Blocks().FindByID(ctx, blocks[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, asJSON(t, headers(blocks)[0]), asJSON(t, got))
	assert.Equal(t, "1000", got.TotalAmount.String())
	assert.Equal(t, "10", got.TotalFee.String())
	assert.Equal(t, "200", got.Reward.String())
}

func TestBlocks_FindByID_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, found, err := s.Blocks().FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBlocks_Lookups(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	blocks := emptyChain(t, s, 5)
	repo := s.Blocks()

	got, found, err := repo.FindByHeight(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blocks[2].ID, got.ID)

	many, err := repo.FindByHeights(ctx, []int64{4, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, heights(many))

	byIDs, err := repo.FindByIDs(ctx, []string{blocks[4].ID, blocks[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, heights(byIDs))

	none, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	rng, err := repo.FindByHeightRange(ctx, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, heights(rng))

	latest, found, err := repo.FindLatest(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), latest.Height)

	recent, err := repo.FindRecent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, heights(recent))

	top, err := repo.FindTop(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, heights(top))

	common, err := repo.FindCommon(ctx, []string{blocks[1].ID, "unknown", blocks[3].ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, heights(common))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestBlocks_FindLatest_Empty(t *testing.T) {
	s := createTestStore(t)

	_, found, err := s.Blocks().FindLatest(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBlocks_FindByHeightRangeWithTransactions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder()
	b.Forge()
	first := b.Add(testutil.Transfer("pkA", "AddrB", 1, 1))
	second := b.Add(testutil.Transfer("pkB", "AddrA", 2, 1))
	b.Forge()
	b.Forge()
	saveChain(t, s, b)

	blocks, err := s.Blocks().FindByHeightRangeWithTransactions(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Empty(t, blocks[0].Transactions)
	assert.Equal(t, []string{first.ID, second.ID}, txIDs(blocks[1].Transactions))
	assert.Empty(t, blocks[2].Transactions)
}

func TestBlocks_Search(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder()
	b.ForgeEmpty(3)
	b.WithGenerator("pkOther").ForgeEmpty(2)
	saveChain(t, s, b)

	page, err := s.Blocks().Search(ctx,
		criteria.OrRecords{{"height": criteria.From(2), "generatorPublicKey": criteria.Eq(testutil.DefaultGenerator)}},
		[]querysql.Sort{querysql.Desc("height")}, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, heights(page.Results))
	assert.Equal(t, int64(2), page.TotalCount)
	assert.False(t, page.CountIsEstimate)

	page, err = s.Blocks().Search(ctx, criteria.OrRecords{
		{"height": criteria.Eq(1)},
		{"generatorPublicKey": criteria.Eq("pkOther")},
	}, []querysql.Sort{querysql.Asc("height")}, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 5}, heights(page.Results))
}

func TestBlocks_Search_UnknownKeyIgnored(t *testing.T) {
	s := createTestStore(t)
	emptyChain(t, s, 2)

	page, err := s.Blocks().Search(context.Background(),
		criteria.OrRecords{{"nonsense": criteria.Eq("x")}}, nil, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Results, 2)
}

func TestBlocks_Statistics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder().WithReward(200)
	b.Add(testutil.Transfer("pkA", "AddrB", 1000, 10))
	b.Forge()
	b.Add(testutil.Transfer("pkA", "AddrB", 500, 5))
	b.Add(testutil.Transfer("pkB", "AddrA", 100, 5))
	b.WithGenerator("pkOther").Forge()
	saveChain(t, s, b)

	stats, err := s.Blocks().GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, Statistics{
		Count:                2,
		NumberOfTransactions: 3,
		TotalFee:             "20",
		TotalAmount:          "1600",
		TotalReward:          "400",
	}, stats)

	forgers, err := s.Blocks().GetDelegatesForgedBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ForgerStatistics{
		{GeneratorPublicKey: testutil.DefaultGenerator, Blocks: 1, TotalFees: "10", TotalRewards: "200", LastHeight: 1},
		{GeneratorPublicKey: "pkOther", Blocks: 1, TotalFees: "10", TotalRewards: "200", LastHeight: 2},
	}, forgers)

	rewards, err := s.Blocks().GetBlockRewards(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []BlockReward{
		{Height: 1, GeneratorPublicKey: testutil.DefaultGenerator, Reward: "210"},
		{Height: 2, GeneratorPublicKey: "pkOther", Reward: "210"},
	}, rewards)
}

func TestBlocks_Statistics_Empty(t *testing.T) {
	s := createTestStore(t)

	stats, err := s.Blocks().GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Statistics{TotalFee: "0", TotalAmount: "0", TotalReward: "0"}, stats)
}

func TestBlocks_SaveBlocks_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder()
	b.Add(testutil.Transfer("pkA", "AddrB", 1, 1))
	b.Forge()
	blocks := b.Blocks()
	require.NoError(t, s.Blocks().SaveBlocks(ctx, blocks))

	// Same header again plus a fresh block: the duplicate fails and the
	// fresh block must not survive.
	b.Forge()
	err := s.Blocks().SaveBlocks(ctx, []ledger.Block{b.Tip(), blocks[0]})
	require.Error(t, err)

	n, err := s.Blocks().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err := s.Transactions().GetCountOfTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBlocks_SaveBlocks_Empty(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Blocks().SaveBlocks(context.Background(), nil))
}

func TestBlocks_FindManyByExpression_Unsupported(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Blocks().FindManyByExpression(context.Background(), expr.Void{}, nil)
	require.Error(t, err)
	assert.True(t, querysql.IsUnsupportedExpression(err))

	_, err = s.Blocks().FindManyByExpression(context.Background(), expr.Equal{Property: "nope", Value: 1}, nil)
	require.Error(t, err)
	assert.True(t, querysql.IsColumnNotFound(err))
}
