package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := OpenSQLite(context.Background(), path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if _, ok := s.Dialect().(querysql.SQLite); !ok {
		t.Errorf("Dialect() = %T, want querysql.SQLite", s.Dialect())
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(ctx, path, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(ctx, path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"blocks", "transactions", "rounds"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s1, err := OpenSQLite(ctx, path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("first OpenSQLite() failed: %v", err)
	}
	emptyChain(t, s1, 2)
	s1.Close()

	s2, err := OpenSQLite(ctx, path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("second OpenSQLite() failed: %v", err)
	}
	defer s2.Close()

	n, err := s2.Blocks().Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"})
	if err == nil {
		t.Fatal("Open() with unsupported driver should fail")
	}
}

func TestSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, currentSchemaVersion)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	var journal string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journal); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if journal != "wal" {
		t.Errorf("journal_mode = %q, want wal", journal)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys query failed: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	rounds := ledger.FixedRounds{ActiveDelegates: 5}

	s := createTestStore(t, WithMetrics(m), WithRounds(rounds))

	if s.Metrics() != m {
		t.Error("WithMetrics not applied")
	}
	if s.Metrics().Registry() != reg {
		t.Error("metrics registry not preserved")
	}
	if s.Rounds() != rounds {
		t.Errorf("Rounds() = %v, want %v", s.Rounds(), rounds)
	}
	if s.Blocks() == nil || s.Transactions() == nil || s.RoundRecords() == nil {
		t.Error("repositories not initialized")
	}
}
