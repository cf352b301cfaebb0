package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/config"
	"github.com/roach88/ledgerdb/internal/filter"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/store"
)

// session is an opened store with the configuration it was opened with.
type session struct {
	cfg     *config.Config
	store   *store.Store
	logger  *slog.Logger
	metrics *store.Metrics
	out     *OutputFormatter
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger on w.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// formatter builds the output formatter for cmd.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openSession loads the configuration and connects to the store.
// Failures are reported through the formatter.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	out := formatter(cmd, opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)

	storeOpts := []store.Option{
		store.WithLogger(logger),
		store.WithRounds(ledger.FixedRounds{ActiveDelegates: cfg.Rounds.ActiveDelegates}),
	}

	metrics := store.NewMetrics(prometheus.NewRegistry())
	storeOpts = append(storeOpts, store.WithMetrics(metrics))

	if cfg.Wallets.IndexFile != "" {
		wallets, err := loadWallets(cfg.Wallets)
		if err != nil {
			_ = out.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "failed to load wallet index", err)
		}
		storeOpts = append(storeOpts, store.WithWallets(wallets))
	}

	st, err := connect(cmd.Context(), cfg.Database, logger, storeOpts)
	if err != nil {
		_ = out.Error(ErrCodeConnect, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("database ready", "driver", cfg.Database.Driver, "dsn", describeDSN(cfg.Database.DSN))

	return &session{cfg: cfg, store: st, logger: logger, metrics: metrics, out: out}, nil
}

func loadWallets(cfg config.Wallets) (filter.WalletFinder, error) {
	index, err := filter.LoadWalletIndex(cfg.IndexFile)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize == 0 {
		return index, nil
	}
	return filter.NewCachedWalletFinder(index, cfg.CacheSize)
}

// connect opens the store, retrying with exponential backoff until the
// configured connect timeout elapses. SQLite failures are not retried.
func connect(ctx context.Context, db config.Database, logger *slog.Logger, opts []store.Option) (*store.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := store.Config{
		Driver:       db.Driver,
		DSN:          db.DSN,
		ReadDSN:      db.ReadDSN,
		MaxOpenConns: db.MaxOpenConns,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = db.Timeout()
	if policy.MaxElapsedTime <= 0 {
		policy.MaxElapsedTime = time.Second
	}

	var st *store.Store
	operation := func() error {
		var err error
		st, err = store.Open(ctx, cfg, opts...)
		if err != nil && db.Driver == "sqlite3" {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", "driver", db.Driver, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return st, nil
}

// Close closes the store and writes the metrics textfile when configured.
func (s *session) Close() error {
	err := s.store.Close()
	if path := s.cfg.Metrics.Textfile; path != "" {
		if werr := prometheus.WriteToTextfile(path, s.metrics.Registry()); werr != nil {
			s.logger.Error("failed to write metrics", "path", path, "error", werr)
			err = errors.Join(err, werr)
		}
	}
	return err
}

// listOptions builds store pagination from search flags.
func (s *session) listOptions(f *searchFlags) (store.Pagination, store.ListOptions) {
	return store.Pagination{Offset: f.Offset, Limit: s.cfg.Listing.Limit(f.Limit)},
		store.ListOptions{EstimateTotalCount: f.Estimate || s.cfg.Listing.EstimateTotalCount}
}

// describeDSN hides credentials in a DSN for log output.
func describeDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return fmt.Sprintf("%s://%s", scheme, rest)
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(s *session) error) (err error) {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, "failed to close database", cerr)
		}
	}()
	return fn(s)
}
