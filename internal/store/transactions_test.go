package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/filter"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
	"github.com/roach88/ledgerdb/internal/testutil"
)

// feeChain forges three transfers with fees 100/200/300 across two blocks
// plus one delegate registration.
func feeChain(t *testing.T, s *Store) []ledger.Transaction {
	t.Helper()
	b := testutil.NewChainBuilder()
	t1 := b.Add(testutil.Transfer("pkA", "AddrB", 1000, 100))
	t2 := b.Add(testutil.Transfer("pkB", "AddrA", 2000, 200))
	b.Forge()
	t3 := b.Add(testutil.Transfer("pkA", "AddrC", 3000, 300))
	reg := b.Add(testutil.DelegateRegistration("pkD", "dave", 2500))
	b.Forge()
	saveChain(t, s, b)
	return []ledger.Transaction{t1, t2, t3, reg}
}

func TestTransactions_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := testutil.NewChainBuilder()
	tx := testutil.Transfer("pkA", "AddrB", 1234, 56)
	tx.VendorField = "caf\u00e9 \u2603"
	want := b.Add(tx)
	reg := b.Add(testutil.DelegateRegistration("pkC", "carol", 25))
	block := b.Forge()
	saveChain(t, s, b)

	got, found, err := s.Transactions().FindByID(ctx, want.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, asJSON(t, block.Transactions[0]), asJSON(t, got))
	assert.Equal(t, "caf\u00e9 \u2603", got.VendorField)
	assert.Equal(t, block.ID, got.BlockID)
	assert.Equal(t, int64(1), got.BlockHeight)
	assert.NotEmpty(t, got.Serialized)

	gotReg, found, err := s.Transactions().FindByID(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, gotReg.Sequence)
	assert.Equal(t, map[string]any{"delegate": map[string]any{"username": "carol"}}, gotReg.Asset)
}

func TestTransactions_Lookups(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)
	repo := s.Transactions()

	got, err := repo.FindByIDs(ctx, []string{txs[2].ID, txs[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[2].ID}, txIDs(got))

	blocks, err := s.Blocks().FindByHeights(ctx, []int64{2})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	byBlock, err := repo.FindByBlockIDs(ctx, []string{blocks[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[2].ID, txs[3].ID}, txIDs(byBlock))

	forged, err := repo.FindForgedTransactionIDs(ctx, []string{"unknown", txs[1].ID, txs[3].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[1].ID, txs[3].ID}, forged)

	n, err := repo.GetCountOfTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTransactions_FindByIDsWithBlockTimestamp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)

	blocks, err := s.Blocks().FindByHeightRange(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	got, err := s.Transactions().FindByIDsWithBlockTimestamp(ctx, []string{txs[3].ID, txs[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, txs[0].ID, got[0].ID)
	assert.Equal(t, blocks[0].Timestamp, got[0].BlockTimestamp)
	assert.Equal(t, txs[3].ID, got[1].ID)
	assert.Equal(t, blocks[1].Timestamp, got[1].BlockTimestamp)

	empty, err := s.Transactions().FindByIDsWithBlockTimestamp(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTransactions_ListPagination(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)
	transfers := criteria.OrRecords{{"type": criteria.Eq(ledger.TypeTransfer)}}

	page, err := s.Transactions().Search(ctx, transfers, nil, Pagination{Offset: 0, Limit: 2}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[1].ID}, txIDs(page.Results))
	assert.Equal(t, int64(3), page.TotalCount)
	assert.False(t, page.CountIsEstimate)

	page, err = s.Transactions().Search(ctx, transfers, nil, Pagination{Offset: 2, Limit: 2}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[2].ID}, txIDs(page.Results))
	assert.Equal(t, int64(3), page.TotalCount)

	// SQLite has no planner estimate: the exact count is reported.
	page, err = s.Transactions().Search(ctx, transfers, nil, Pagination{Limit: 2}, ListOptions{EstimateTotalCount: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.False(t, page.CountIsEstimate)

	page, err = s.Transactions().Search(ctx, transfers, nil, Pagination{Offset: 10}, ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, page.Results)
	assert.Empty(t, page.Results)
	assert.Equal(t, int64(3), page.TotalCount)
}

func TestTransactions_SearchCriteria(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)

	tests := []struct {
		name    string
		records criteria.OrRecords
		sorting []querysql.Sort
		want    []string
	}{
		{
			name:    "fee range",
			records: criteria.OrRecords{{"fee": criteria.Between(150, 300)}},
			want:    []string{txs[1].ID, txs[2].ID},
		},
		{
			name:    "big fee as text",
			records: criteria.OrRecords{{"fee": criteria.From("2500")}},
			want:    []string{txs[3].ID},
		},
		{
			name:    "any of recipients",
			records: criteria.OrRecords{{"recipientId": criteria.AnyOf{criteria.Eq("AddrB"), criteria.Eq("AddrC")}}},
			want:    []string{txs[0].ID, txs[2].ID},
		},
		{
			name:    "asset containment",
			records: criteria.OrRecords{{"asset": criteria.Eq(map[string]any{"delegate": map[string]any{"username": "dave"}})}},
			want:    []string{txs[3].ID},
		},
		{
			name:    "sorted by fee descending",
			records: criteria.OrRecords{{"senderPublicKey": criteria.Eq("pkA")}},
			sorting: []querysql.Sort{querysql.Desc("fee")},
			want:    []string{txs[2].ID, txs[0].ID},
		},
		{
			name:    "no records",
			records: nil,
			want:    txIDs(txs),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.Transactions().Search(ctx, tt.records, tt.sorting, Pagination{}, ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, txIDs(page.Results))
			assert.Equal(t, int64(len(tt.want)), page.TotalCount)
		})
	}
}

func TestTransactions_SearchWallets(t *testing.T) {
	wallets := filter.NewWalletIndex(
		filter.Wallet{Address: "AddrA", PublicKey: "pkA"},
		filter.Wallet{Address: "AddrD", PublicKey: "pkD"},
	)
	s := createTestStore(t, WithWallets(wallets))
	ctx := context.Background()
	txs := feeChain(t, s)

	// AddrA sent two transfers and received one.
	page, err := s.Transactions().Search(ctx, criteria.OrRecords{{"address": criteria.Eq("AddrA")}}, nil, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[1].ID, txs[2].ID}, txIDs(page.Results))

	// AddrD is the recipient of its own delegate registration.
	page, err = s.Transactions().Search(ctx, criteria.OrRecords{{"recipientId": criteria.Eq("AddrD")}}, nil, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{txs[3].ID}, txIDs(page.Results))

	// An unknown sender matches nothing.
	page, err = s.Transactions().Search(ctx, criteria.OrRecords{{"senderId": criteria.Eq("AddrZ")}}, nil, Pagination{}, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Equal(t, int64(0), page.TotalCount)
}

func TestTransactions_Stream(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)

	stream, err := s.Transactions().Stream(ctx, criteria.OrRecords{{"typeGroup": criteria.Eq(1)}}, nil)
	require.NoError(t, err)

	var got []string
	for stream.Next() {
		got = append(got, stream.Value().ID)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, txIDs(txs), got)
	assert.False(t, stream.Next(), "exhausted stream stays exhausted")
	assert.NoError(t, stream.Close())

	// The connection was released: other queries run.
	n, err := s.Transactions().GetCountOfTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTransactions_StreamAll_Break(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txs := feeChain(t, s)

	stream, err := s.Transactions().StreamByExpression(ctx, expr.True{}, canonicalOrder)
	require.NoError(t, err)

	var got []string
	for tx, err := range stream.All() {
		require.NoError(t, err)
		got = append(got, tx.ID)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, txIDs(txs[:2]), got)

	// Breaking closed the stream and released the connection.
	_, found, err := s.Transactions().FindByID(ctx, txs[3].ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTransactions_RoundTrip_AmountBeyondInt64(t *testing.T) {
	s := createTestStore(t)
	amount, ok := new(big.Int).SetString("1180591620717411303425", 10) // 2^70 + 1
	require.True(t, ok)

	b := testutil.NewChainBuilder()
	tx := testutil.Transfer("pkA", "AddrB", 0, 10)
	tx.Amount = amount
	want := b.Add(tx)
	b.Forge()
	saveChain(t, s, b)

	got, found, err := s.Transactions().FindByID(context.Background(), want.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1180591620717411303425", got.Amount.String())
}

func TestTransactions_FeeStatistics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	feeChain(t, s)

	stats, err := s.Transactions().GetFeeStatistics(ctx, 0, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, []FeeStatistics{
		{TypeGroup: 1, Type: ledger.TypeTransfer, Avg: "200", Min: "100", Max: "300", Sum: "600"},
		{TypeGroup: 1, Type: ledger.TypeDelegateRegistration, Avg: "2500", Min: "2500", Max: "2500", Sum: "2500"},
	}, stats)

	stats, err = s.Transactions().GetFeeStatistics(ctx, 0, big.NewInt(150))
	require.NoError(t, err)
	require.NotEmpty(t, stats)
	assert.Equal(t, FeeStatistics{TypeGroup: 1, Type: ledger.TypeTransfer, Avg: "250", Min: "200", Max: "300", Sum: "500"}, stats[0])

	stats, err = s.Transactions().GetFeeStatistics(ctx, 1_000_000, nil)
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestTransactions_FeeStatistics_AverageTruncates(t *testing.T) {
	s := createTestStore(t)
	b := testutil.NewChainBuilder()
	b.Add(testutil.Transfer("pkA", "AddrB", 1, 10))
	b.Add(testutil.Transfer("pkA", "AddrB", 1, 20))
	b.Add(testutil.Transfer("pkA", "AddrB", 1, 20))
	b.Forge()
	saveChain(t, s, b)

	stats, err := s.Transactions().GetFeeStatistics(context.Background(), 0, big.NewInt(0))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "16", stats[0].Avg)
	assert.Equal(t, "50", stats[0].Sum)
}

func TestTransactions_UnmappedColumn(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	feeChain(t, s)
	repo := s.Transactions()

	query := "SELECT " + repo.selectList("") + ", 1 AS extra FROM transactions"
	_, err := repo.queryAll(ctx, s.db, query, map[string]any{}, nil)
	require.Error(t, err)
	assert.True(t, IsAssertion(err))

	var seen int
	custom := func(_ *ledger.Transaction, column string, value any) error {
		assert.Equal(t, "extra", column)
		seen++
		return nil
	}
	got, err := repo.queryAll(ctx, s.db, query, map[string]any{}, custom)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 4, seen)
}
