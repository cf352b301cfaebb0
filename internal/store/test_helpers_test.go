package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/testutil"
)

// createTestStore opens a fresh SQLite ledger in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := OpenSQLite(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// saveChain persists every block of b.
func saveChain(t *testing.T, s *Store, b *testutil.ChainBuilder) []ledger.Block {
	t.Helper()
	blocks := b.Blocks()
	require.NoError(t, s.Blocks().SaveBlocks(context.Background(), blocks))
	return blocks
}

// emptyChain saves n empty blocks.
func emptyChain(t *testing.T, s *Store, n int) []ledger.Block {
	t.Helper()
	b := testutil.NewChainBuilder()
	b.ForgeEmpty(n)
	return saveChain(t, s, b)
}

// asJSON renders v for comparisons that should ignore big.Int internals
// and json.Number versus int in assets.
func asJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func headers(blocks []ledger.Block) []ledger.Block {
	out := make([]ledger.Block, len(blocks))
	for i, b := range blocks {
		b.Transactions = nil
		out[i] = b
	}
	return out
}

func heights(blocks []ledger.Block) []int64 {
	out := make([]int64, len(blocks))
	for i, b := range blocks {
		out[i] = b.Height
	}
	return out
}

func txIDs(txs []ledger.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
