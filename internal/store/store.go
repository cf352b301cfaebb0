package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/roach88/ledgerdb/internal/filter"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Schema version tracking:
// 1 - blocks, transactions, rounds
const currentSchemaVersion = 1

// Config selects the database.
type Config struct {
	// Driver is "pgx", "postgres" (lib/pq) or "sqlite3".
	Driver string

	// DSN is the read-write connection string (a file path for SQLite).
	DSN string

	// ReadDSN optionally points paginated listing at a replica.
	ReadDSN string

	// MaxOpenConns bounds the PostgreSQL pool. SQLite always uses one.
	MaxOpenConns int
}

// Store owns the database handles and the entity repositories.
type Store struct {
	db      *sql.DB
	readDB  *sql.DB
	dialect querysql.Dialect
	logger  *slog.Logger
	metrics *Metrics
	rounds  ledger.RoundCalculator
	codec   ledger.TransactionCodec
	wallets filter.WalletFinder
	explain planReader

	blocks       *BlockRepository
	transactions *TransactionRepository
	roundRecords *RoundRepository
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics sink. Default: metrics on a private registry.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithRounds sets the round calculator. Default: 51 active delegates.
func WithRounds(r ledger.RoundCalculator) Option {
	return func(s *Store) { s.rounds = r }
}

// WithCodec sets the transaction payload codec. Default: CanonicalCodec.
func WithCodec(c ledger.TransactionCodec) Option {
	return func(s *Store) { s.codec = c }
}

// WithWallets sets the wallet finder used by transaction searches.
func WithWallets(w filter.WalletFinder) Option {
	return func(s *Store) { s.wallets = w }
}

// Open connects to the configured database and applies the schema.
// Open is idempotent - safe to call on an existing database.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	dialect, err := querysql.DialectFor(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	s.applyDefaults()

	s.db, err = openDB(ctx, dialect, cfg.Driver, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	s.readDB = s.db
	if cfg.ReadDSN != "" {
		s.readDB, err = openDB(ctx, dialect, cfg.Driver, cfg.ReadDSN, cfg.MaxOpenConns)
		if err != nil {
			s.db.Close()
			return nil, err
		}
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.blocks = newBlockRepository(s)
	s.transactions = newTransactionRepository(s)
	s.roundRecords = newRoundRepository(s)

	s.logger.Debug("store opened", "dialect", dialect.Name(), "read_replica", cfg.ReadDSN != "")
	return s, nil
}

// OpenSQLite opens (or creates) a SQLite ledger at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	return Open(ctx, Config{Driver: "sqlite3", DSN: path}, opts...)
}

func (s *Store) applyDefaults() {
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.rounds == nil {
		s.rounds = ledger.FixedRounds{ActiveDelegates: 51}
	}
	if s.codec == nil {
		s.codec = ledger.CanonicalCodec{}
	}
	if s.explain == nil {
		s.explain = readPlan
	}
}

func openDB(ctx context.Context, dialect querysql.Dialect, driver, dsn string, maxOpen int) (*sql.DB, error) {
	if _, ok := dialect.(querysql.SQLite); ok {
		driver = sqliteDriverName
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, ok := dialect.(querysql.SQLite); ok {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if maxOpen > 0 {
			db.SetMaxOpenConns(maxOpen)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, ok := dialect.(querysql.SQLite); ok {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}
	return db, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	var err error
	if s.readDB != nil && s.readDB != s.db {
		err = s.readDB.Close()
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// DB returns the underlying read-write handle.
// Use with caution - prefer the repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connected database.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Metrics returns the store's metrics.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Rounds returns the round calculator.
func (s *Store) Rounds() ledger.RoundCalculator {
	return s.rounds
}

// Blocks returns the block repository.
func (s *Store) Blocks() *BlockRepository { return s.blocks }

// Transactions returns the transaction repository.
func (s *Store) Transactions() *TransactionRepository { return s.transactions }

// RoundRecords returns the round repository.
func (s *Store) RoundRecords() *RoundRepository { return s.roundRecords }

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Migrate creates missing tables and records the schema version.
// This function is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	switch s.dialect.(type) {
	case querysql.SQLite:
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	default:
		if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		if err := s.recordPostgresVersion(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordPostgresVersion(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema version: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("schema version: clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", currentSchemaVersion); err != nil {
		return fmt.Errorf("schema version: insert: %w", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the recorded schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	query := "SELECT version FROM schema_version"
	if _, ok := s.dialect.(querysql.SQLite); ok {
		query = "PRAGMA user_version"
	}
	var version int
	if err := s.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}
