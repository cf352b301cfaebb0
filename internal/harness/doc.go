// Package harness runs ledger scenarios against a fresh SQLite store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: rollback_top
//	description: "Forge five blocks and roll the top two back"
//	active_delegates: 3
//	steps:
//	  - op: append
//	    blocks: 5
//	    transfers: 2
//	  - op: delete_heights
//	    heights: [2]
//	    expect_error: MIDDLE_DELETION
//	  - op: delete_top
//	    count: 2
//	  - op: search_blocks
//	    criteria: { height: { from: 2 } }
//	    sort: ["height:desc"]
//	    limit: 10
//	assertions:
//	  - type: tip_height
//	    height: 3
//
// # Operations
//
//   - append: forge and save N blocks, each with M generated transfers
//   - delete_top: DeleteTopBlocks(count)
//   - delete_heights: DeleteBlocks for the blocks at the given heights
//   - search_blocks, search_transactions: paginated criteria searches
//   - save_rounds: store round records 1..N for two delegates
//
// A step with expect_error must fail with that error code; any other step
// must succeed.
//
// # Assertion Types
//
//   - tip_height: height of the latest stored block
//   - block_count: number of stored blocks
//   - transaction_count: number of stored transactions
//   - latest_round: highest stored round (0 when none)
//
// # Deterministic Traces
//
// Blocks come from testutil.ChainBuilder, so ids, timestamps and nonces are
// identical across runs. Each step appends one TraceEvent; the trace is
// serialized as canonical JSON for golden comparison.
package harness
