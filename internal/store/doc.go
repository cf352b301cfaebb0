// Package store persists the ledger: blocks, transactions and per-round
// delegate balances, on PostgreSQL or SQLite.
//
// # Repositories
//
// Each entity has a repository built on the generic Repository, which
// executes optimized expressions from internal/expr through the
// internal/querysql compiler:
//   - FindManyByExpression: materialized result
//   - StreamByExpression: lazy, forward-only cursor
//   - ListByExpression: one page plus a total count observed in the same
//     snapshot (exact COUNT or planner estimate)
//
// # Ledger Consistency
//
// Blocks and transactions are only written by SaveBlocks and only removed
// from the chain tail by DeleteBlocks and DeleteTopBlocks. Each call runs in
// one transaction; a violated invariant rolls back and surfaces a
// CorruptionError. Callers serialize structural mutations themselves.
//
// # Database Configuration
//
// SQLite (development, tests, scenarios):
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000, foreign_keys=ON
//   - one open connection; a stream holds it until closed
//   - json_contains registered as a Go function for asset containment
//
// PostgreSQL (pgx or lib/pq):
//   - NUMERIC(30,0) for amounts, BYTEA for binary fields, JSONB for assets
//   - optional read DSN used for paginated listing
//
// Big integers are bound as decimal text and read back into *big.Int.
package store
