package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// CorruptionError reports a violated ledger invariant. The triggering
// transaction has been rolled back; the store needs operator attention and
// the call must not be retried automatically.
type CorruptionError struct {
	// Code identifies which invariant failed.
	Code CorruptionCode

	// Message is a human-readable description.
	Message string

	// Op is the operation that detected the violation.
	Op string

	// Details contains additional context.
	Details map[string]string
}

// CorruptionCode categorizes ledger invariant violations.
type CorruptionCode string

const (
	// ErrCodeMiddleDeletion indicates blocks exist above the ones being deleted.
	ErrCodeMiddleDeletion CorruptionCode = "MIDDLE_DELETION"

	// ErrCodeNotContiguous indicates the deleted blocks are not the complete
	// chain tail from their lowest height up.
	ErrCodeNotContiguous CorruptionCode = "NOT_CONTIGUOUS"

	// ErrCodeCountMismatch indicates the number of affected blocks differs
	// from the number requested.
	ErrCodeCountMismatch CorruptionCode = "COUNT_MISMATCH"
)

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
}

// IsCorruption returns true if err is a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsMiddleDeletion returns true if err is a MIDDLE_DELETION corruption error.
func IsMiddleDeletion(err error) bool {
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeMiddleDeletion
	}
	return false
}

// IsCountMismatch returns true if err is a COUNT_MISMATCH corruption error.
func IsCountMismatch(err error) bool {
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeCountMismatch
	}
	return false
}

// AssertionError reports a row that does not fit the entity being decoded:
// a raw column with no mapped property and no custom handler.
type AssertionError struct {
	Table  string
	Column string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("ASSERTION: unmapped column %q in %s row and no custom handler", e.Column, e.Table)
}

// IsAssertion returns true if err is an AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// StorageError wraps a driver failure. Retryable marks transient
// conditions (serialization conflicts, deadlocks, lost connections, busy
// SQLite); the store itself never retries.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s: %v (retryable)", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable returns true if err is a StorageError marked retryable.
func IsRetryable(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// wrapStorage classifies a driver error for op. Typed errors raised by this
// module pass through with op context only.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ce *CorruptionError
		ae *AssertionError
		se *StorageError
	)
	if errors.As(err, &ce) || errors.As(err, &ae) || errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &StorageError{Op: op, Retryable: isTransient(err), Err: err}
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLState(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientSQLState(string(pqErr.Code))
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return pgconn.SafeToRetry(err)
}

// transientSQLState covers serialization_failure, deadlock_detected and the
// connection exception class.
func transientSQLState(code string) bool {
	switch {
	case code == "40001", code == "40P01":
		return true
	case len(code) == 5 && code[:2] == "08":
		return true
	default:
		return false
	}
}
