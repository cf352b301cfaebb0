package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/store"
	"github.com/roach88/ledgerdb/internal/testutil"
)

// seededLedger is a SQLite ledger of four blocks: a transfer in block 1, a
// transfer and an HTLC lock in block 2, and two empty blocks.
type seededLedger struct {
	path   string
	blocks []ledger.Block
	lock   ledger.Transaction
}

func seedLedger(t *testing.T) seededLedger {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	st, err := store.OpenSQLite(ctx, path, store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer st.Close()

	b := testutil.NewChainBuilder().WithReward(200)
	b.Add(testutil.Transfer("pkA", "AddrB", 100, 10))
	b.Forge()
	b.Add(testutil.Transfer("pkB", "AddrA", 200, 20))
	lock := b.Add(testutil.HtlcLock("pkA", "AddrC", 500, 30))
	b.Forge()
	b.ForgeEmpty(2)

	blocks := b.Blocks()
	require.NoError(t, st.Blocks().SaveBlocks(ctx, blocks))
	require.NoError(t, st.RoundRecords().SaveRounds(ctx, []ledger.Round{
		testRound("pkA", 1, 1000),
		testRound("pkB", 1, 900),
	}))
	return seededLedger{path: path, blocks: blocks, lock: lock}
}

func testRound(publicKey string, round, balance int64) ledger.Round {
	return ledger.Round{PublicKey: publicKey, Round: round, Balance: big.NewInt(balance)}
}

// runCLI executes the root command and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// jsonResponse decodes a JSON CLI response, keeping data raw.
type jsonResponse struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   *CLIError       `json:"error"`
	TraceID string          `json:"trace_id"`
}

func decodeResponse(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.NotEmpty(t, resp.TraceID)
	if data != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	out, err := runCLI(t, "migrate", "--db", path, "--format", "json")
	require.NoError(t, err)

	var result MigrateResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite3", result.Driver)
	assert.Positive(t, result.SchemaVersion)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	out, err = runCLI(t, "migrate", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema at version")
}

func TestBlocksGetCommand(t *testing.T) {
	ledgerDB := seedLedger(t)

	t.Run("by height", func(t *testing.T) {
		out, err := runCLI(t, "blocks", "get", "2", "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var block ledger.Block
		decodeResponse(t, out, &block)
		assert.Equal(t, ledgerDB.blocks[1].ID, block.ID)
		assert.Empty(t, block.Transactions)
	})

	t.Run("by id with transactions", func(t *testing.T) {
		out, err := runCLI(t, "blocks", "get", ledgerDB.blocks[1].ID, "--transactions", "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var block ledger.Block
		decodeResponse(t, out, &block)
		assert.Equal(t, int64(2), block.Height)
		require.Len(t, block.Transactions, 2)
		assert.Equal(t, ledgerDB.lock.ID, block.Transactions[1].ID)
	})

	t.Run("text", func(t *testing.T) {
		out, err := runCLI(t, "blocks", "get", "1", "--transactions", "--db", ledgerDB.path)
		require.NoError(t, err)
		assert.Contains(t, out, ledgerDB.blocks[0].ID)
		assert.Contains(t, out, "sender=pkA recipient=AddrB amount=100 fee=10")
	})

	t.Run("not found", func(t *testing.T) {
		out, err := runCLI(t, "blocks", "get", "99", "--db", ledgerDB.path, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		resp := decodeResponse(t, out, nil)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	})
}

func TestBlocksSearchCommand(t *testing.T) {
	ledgerDB := seedLedger(t)

	out, err := runCLI(t, "blocks", "search",
		"--criteria", `{"height":{"from":2}}`,
		"--sort", "height:desc",
		"--limit", "2",
		"--db", ledgerDB.path, "--format", "json")
	require.NoError(t, err)

	var page store.ResultsPage[ledger.Block]
	decodeResponse(t, out, &page)
	require.Len(t, page.Results, 2)
	assert.Equal(t, int64(4), page.Results[0].Height)
	assert.Equal(t, int64(3), page.Results[1].Height)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.False(t, page.CountIsEstimate)
}

func TestBlocksSearchCommand_CriteriaFile(t *testing.T) {
	ledgerDB := seedLedger(t)
	file := filepath.Join(t.TempDir(), "criteria.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"height":1},{"height":4}]`), 0o644))

	out, err := runCLI(t, "blocks", "search", "--criteria", "@"+file, "--db", ledgerDB.path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 block(s)")
}

func TestBlocksSearchCommand_Rejected(t *testing.T) {
	ledgerDB := seedLedger(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"unknown sort column", []string{"--sort", "colour"}, "COLUMN_NOT_FOUND"},
		{"bad sort", []string{"--sort", "height:sideways"}, ErrCodeInvalidArgument},
		{"negative offset", []string{"--offset", "-1"}, ErrCodeInvalidArgument},
		{"malformed criteria", []string{"--criteria", `{"height":`}, ErrCodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"blocks", "search", "--db", ledgerDB.path, "--format", "json"}, tt.args...)
			out, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestBlocksStatsCommand(t *testing.T) {
	ledgerDB := seedLedger(t)

	out, err := runCLI(t, "blocks", "stats", "--forgers", "--rewards-to", "2", "--db", ledgerDB.path, "--format", "json")
	require.NoError(t, err)

	var stats BlockStatsResult
	decodeResponse(t, out, &stats)
	assert.Equal(t, int64(4), stats.Count)
	assert.Equal(t, int64(3), stats.NumberOfTransactions)
	assert.Equal(t, "800", stats.TotalAmount)
	assert.Equal(t, "60", stats.TotalFee)
	assert.Equal(t, "800", stats.TotalReward)
	require.Len(t, stats.Forgers, 1)
	assert.Equal(t, int64(4), stats.Forgers[0].Blocks)
	assert.Len(t, stats.Rewards, 2)
}

func TestBlocksRollbackCommand(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		ledgerDB := seedLedger(t)

		out, err := runCLI(t, "blocks", "rollback", "--count", "3", "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var result RollbackResult
		decodeResponse(t, out, &result)
		assert.Equal(t, RollbackResult{Deleted: 3, Tip: 1}, result)
	})

	t.Run("heights", func(t *testing.T) {
		ledgerDB := seedLedger(t)

		out, err := runCLI(t, "blocks", "rollback", "--heights", "3,4", "--db", ledgerDB.path)
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted 2 block(s); tip is now 2")
	})

	t.Run("middle deletion refused", func(t *testing.T) {
		ledgerDB := seedLedger(t)

		out, err := runCLI(t, "blocks", "rollback", "--heights", "2", "--db", ledgerDB.path, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.True(t, store.IsMiddleDeletion(err))

		resp := decodeResponse(t, out, nil)
		assert.Equal(t, "MIDDLE_DELETION", resp.Error.Code)

		tip, err := runCLI(t, "blocks", "get", "4", "--db", ledgerDB.path)
		require.NoError(t, err)
		assert.Contains(t, tip, ledgerDB.blocks[3].ID)
	})

	t.Run("unknown height", func(t *testing.T) {
		ledgerDB := seedLedger(t)

		_, err := runCLI(t, "blocks", "rollback", "--heights", "4,9", "--db", ledgerDB.path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("flags required", func(t *testing.T) {
		for _, args := range [][]string{
			{"blocks", "rollback"},
			{"blocks", "rollback", "--count", "1", "--heights", "4"},
		} {
			_, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		}
	})
}

func TestTransactionsCommands(t *testing.T) {
	ledgerDB := seedLedger(t)

	t.Run("get", func(t *testing.T) {
		out, err := runCLI(t, "transactions", "get", ledgerDB.lock.ID, "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var txs []store.TimestampedTransaction
		decodeResponse(t, out, &txs)
		require.Len(t, txs, 1)
		assert.Equal(t, ledgerDB.lock.ID, txs[0].ID)
		assert.Equal(t, ledgerDB.blocks[1].Timestamp, txs[0].BlockTimestamp)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := runCLI(t, "txs", "get", "missing", "--db", ledgerDB.path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("search by address", func(t *testing.T) {
		out, err := runCLI(t, "transactions", "search",
			"--criteria", `{"address":"AddrA"}`,
			"--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var page store.ResultsPage[ledger.Transaction]
		decodeResponse(t, out, &page)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "pkB", page.Results[0].SenderPublicKey)
		assert.Equal(t, int64(1), page.TotalCount)
	})

	t.Run("fees", func(t *testing.T) {
		out, err := runCLI(t, "transactions", "fees", "--min-fee", "15", "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var stats []store.FeeStatistics
		decodeResponse(t, out, &stats)
		require.Len(t, stats, 2)
		assert.Equal(t, ledger.TypeTransfer, stats[0].Type)
		assert.Equal(t, "20", stats[0].Sum)
		assert.Equal(t, ledger.TypeHtlcLock, stats[1].Type)
		assert.Equal(t, "30", stats[1].Sum)
	})

	t.Run("fees invalid threshold", func(t *testing.T) {
		_, err := runCLI(t, "transactions", "fees", "--min-fee", "ten", "--db", ledgerDB.path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("htlc", func(t *testing.T) {
		out, err := runCLI(t, "transactions", "htlc", "--db", ledgerDB.path, "--format", "json")
		require.NoError(t, err)

		var result HtlcResult
		decodeResponse(t, out, &result)
		require.Len(t, result.Open, 1)
		assert.Equal(t, ledgerDB.lock.ID, result.Open[0].ID)
		assert.Empty(t, result.Claimed)
		assert.Empty(t, result.Refunded)
	})
}

func TestRoundsGetCommand(t *testing.T) {
	ledgerDB := seedLedger(t)

	out, err := runCLI(t, "rounds", "get", "--db", ledgerDB.path, "--format", "json")
	require.NoError(t, err)

	var result RoundResult
	decodeResponse(t, out, &result)
	assert.Equal(t, int64(1), result.Round)
	require.Len(t, result.Delegates, 2)

	out, err = runCLI(t, "rounds", "get", "1", "--db", ledgerDB.path)
	require.NoError(t, err)
	assert.Contains(t, out, "Round 1: 2 delegate(s)")

	_, err = runCLI(t, "rounds", "get", "zero", "--db", ledgerDB.path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		out, err := runCLI(t, "migrate", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))

		resp := decodeResponse(t, out, nil)
		assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := runCLI(t, "migrate", "--driver", "mysql", "--db", "x")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestScenarioRunCommand(t *testing.T) {
	scenarios := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := runCLI(t, "scenario", "run",
		filepath.Join(scenarios, "rollback_top.yaml"),
		filepath.Join(scenarios, "middle_deletion.yaml"),
		"--format", "json")
	require.NoError(t, err)

	var outcomes []ScenarioOutcome
	decodeResponse(t, out, &outcomes)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "rollback_top", outcomes[0].Name)
	assert.True(t, outcomes[0].Pass)
	assert.Empty(t, outcomes[0].Trace)
	assert.True(t, outcomes[1].Pass)
}

func TestScenarioRunCommand_Failure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wrong_tip.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`name: wrong_tip
description: Expect a tip the chain never reaches
steps:
  - op: append
    blocks: 2
assertions:
  - type: tip_height
    height: 5
`), 0o644))

	out, err := runCLI(t, "scenario", "run", file, "--trace")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL wrong_tip")
	assert.Contains(t, out, "[1] append")
	assert.Contains(t, out, "1 scenario(s), 1 failed")
}
