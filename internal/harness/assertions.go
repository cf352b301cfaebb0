package harness

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerdb/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against st and returns one
// message per failure.
func EvaluateAssertions(ctx context.Context, st *store.Store, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, st, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, st *store.Store, a Assertion) error {
	var (
		expected int64
		actual   int64
		err      error
	)
	switch a.Type {
	case AssertTipHeight:
		expected = a.Height
		actual, err = tipHeight(ctx, st)
	case AssertBlockCount:
		expected = a.Count
		actual, err = st.Blocks().Count(ctx)
	case AssertTransactionCount:
		expected = a.Count
		actual, err = st.Transactions().GetCountOfTransactions(ctx)
	case AssertLatestRound:
		expected = a.Round
		actual, err = st.RoundRecords().GetLatestRound(ctx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if actual != expected {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
		}
	}
	return nil
}

func tipHeight(ctx context.Context, st *store.Store) (int64, error) {
	latest, found, err := st.Blocks().FindLatest(ctx)
	if err != nil || !found {
		return 0, err
	}
	return latest.Height, nil
}
