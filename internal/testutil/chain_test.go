package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/ledger"
)

func TestChainBuilder_LinksBlocks(t *testing.T) {
	b := NewChainBuilder()
	blocks := b.ForgeEmpty(3)

	require.Len(t, blocks, 3)
	assert.True(t, blocks[0].IsGenesis())
	for i, block := range blocks {
		assert.Equal(t, int64(i+1), block.Height)
		assert.Len(t, block.ID, 64)
		if i > 0 {
			assert.Equal(t, blocks[i-1].ID, block.PreviousBlock)
			assert.Greater(t, block.Timestamp, blocks[i-1].Timestamp)
		}
	}
	assert.Equal(t, blocks[2], b.Tip())
}

func TestChainBuilder_FillsTransactions(t *testing.T) {
	b := NewChainBuilder()
	first := b.Add(Transfer("pkA", "AddrB", 10, 1))
	second := b.Add(Transfer("pkA", "AddrC", 20, 2))
	block := b.Forge()

	assert.Equal(t, int64(1), first.Nonce.Int64())
	assert.Equal(t, int64(2), second.Nonce.Int64())
	assert.NotEqual(t, first.ID, second.ID)

	require.Len(t, block.Transactions, 2)
	assert.Equal(t, 2, block.NumberOfTransactions)
	assert.Equal(t, "30", block.TotalAmount.String())
	assert.Equal(t, "3", block.TotalFee.String())
	for i, tx := range block.Transactions {
		assert.Equal(t, i, tx.Sequence)
		assert.Equal(t, block.ID, tx.BlockID)
		assert.Equal(t, block.Height, tx.BlockHeight)
	}
}

func TestChainBuilder_Deterministic(t *testing.T) {
	build := func() []ledger.Block {
		b := NewChainBuilder()
		lock := b.Add(HtlcLock("pkA", "AddrB", 100, 1))
		b.Add(HtlcClaim("pkB", lock.ID, 1))
		b.Forge()
		b.Add(DelegateRegistration("pkC", "carol", 25))
		b.Forge()
		return b.Blocks()
	}
	assert.Equal(t, build(), build())
}

func TestHtlcClaim_ReferencesLock(t *testing.T) {
	b := NewChainBuilder()
	lock := b.Add(HtlcLock("pkA", "AddrB", 100, 1))
	claim := b.Add(HtlcClaim("pkB", lock.ID, 1))
	refund := b.Add(HtlcRefund("pkA", lock.ID, 1))

	id, ok := claim.LockTransactionID()
	require.True(t, ok)
	assert.Equal(t, lock.ID, id)

	id, ok = refund.LockTransactionID()
	require.True(t, ok)
	assert.Equal(t, lock.ID, id)
}

func TestChainBuilder_Rewind(t *testing.T) {
	b := NewChainBuilder()
	blocks := b.ForgeEmpty(4)

	b.Rewind(2)
	assert.Equal(t, blocks[1], b.Tip())
	assert.Len(t, b.Blocks(), 2)

	next := b.Forge()
	assert.Equal(t, int64(3), next.Height)
	assert.Equal(t, blocks[1].ID, next.PreviousBlock)
	assert.Greater(t, next.Timestamp, blocks[3].Timestamp)
	assert.NotEqual(t, blocks[2].ID, next.ID)

	b.Rewind(-1)
	assert.Empty(t, b.Blocks())
}
