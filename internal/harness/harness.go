package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
	"github.com/roach88/ledgerdb/internal/store"
	"github.com/roach88/ledgerdb/internal/testutil"
)

// Error codes reported for failures that carry no typed code.
const (
	ErrCodeUnknownHeight   = "UNKNOWN_HEIGHT"
	ErrCodeInvalidCriteria = "INVALID_CRITERIA"
	ErrCodeInvalidSort     = "INVALID_SORT"
	ErrCodeFailed          = "ERROR"
)

// Harness executes scenario steps against one store.
type Harness struct {
	store  *store.Store
	chain  *testutil.ChainBuilder
	logger *slog.Logger
	seq    int64
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger routes store logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temporary directory,
// removed afterwards. A returned error means the scenario could not be
// executed at all; step and assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := os.MkdirTemp("", "ledgerdb-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	delegates := scenario.ActiveDelegates
	if delegates == 0 {
		delegates = 51
	}
	st, err := store.OpenSQLite(ctx, filepath.Join(dir, "ledger.db"),
		store.WithLogger(o.logger),
		store.WithRounds(ledger.FixedRounds{ActiveDelegates: delegates}))
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		chain:  testutil.NewChainBuilder(),
		logger: o.logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, records it and checks its expectation.
// The returned error is reserved for failures of the harness itself.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	h.seq++
	out, stepErr := h.dispatch(ctx, step)

	event := TraceEvent{Seq: h.seq, Op: step.Op, Args: step.args(), Outcome: OutcomeOK}
	if stepErr != nil {
		event.Outcome = ErrorCode(stepErr)
	} else {
		event.Result = out
	}
	result.AddTrace(event)
	h.logger.Debug("scenario step", "seq", h.seq, "op", step.Op, "outcome", event.Outcome)

	switch {
	case step.ExpectError == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, step.Op, stepErr))
	case step.ExpectError != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got success", index, step.Op, step.ExpectError))
	case step.ExpectError != "" && event.Outcome != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %s: %v", index, step.Op, step.ExpectError, event.Outcome, stepErr))
	}

	// Keep the builder on the stored chain whatever the step did.
	return h.syncChain(ctx)
}

func (h *Harness) dispatch(ctx context.Context, step Step) (map[string]any, error) {
	switch step.Op {
	case OpAppend:
		return h.appendBlocks(ctx, step.Blocks, step.Transfers)
	case OpDeleteTop:
		if err := h.store.Blocks().DeleteTopBlocks(ctx, step.Count); err != nil {
			return nil, err
		}
		return h.tip(ctx)
	case OpDeleteHeights:
		return h.deleteHeights(ctx, step.Heights)
	case OpSearchBlocks:
		return h.searchBlocks(ctx, step)
	case OpSearchTransactions:
		return h.searchTransactions(ctx, step)
	case OpSaveRounds:
		return h.saveRounds(ctx, step.Rounds)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) appendBlocks(ctx context.Context, blocks, transfers int) (map[string]any, error) {
	forged := make([]ledger.Block, 0, blocks)
	for range blocks {
		for j := range transfers {
			h.chain.Add(testutil.Transfer(
				fmt.Sprintf("pk%c", 'A'+j%4),
				fmt.Sprintf("Addr%c", 'A'+(j+1)%4),
				int64(100*(j+1)), 10))
		}
		forged = append(forged, h.chain.Forge())
	}
	if err := h.store.Blocks().SaveBlocks(ctx, forged); err != nil {
		return nil, err
	}
	return h.tip(ctx)
}

func (h *Harness) deleteHeights(ctx context.Context, heights []int64) (map[string]any, error) {
	chain := h.chain.Blocks()
	targets := make([]ledger.Block, 0, len(heights))
	for _, height := range heights {
		if height < 1 || height > int64(len(chain)) {
			return nil, &stepError{code: ErrCodeUnknownHeight, err: fmt.Errorf("no block at height %d", height)}
		}
		targets = append(targets, chain[height-1])
	}
	if err := h.store.Blocks().DeleteBlocks(ctx, targets); err != nil {
		return nil, err
	}
	return h.tip(ctx)
}

func (h *Harness) searchBlocks(ctx context.Context, step Step) (map[string]any, error) {
	records, sorting, err := searchArgs(step)
	if err != nil {
		return nil, err
	}
	page, err := h.store.Blocks().Search(ctx, records, sorting,
		store.Pagination{Offset: step.Offset, Limit: step.Limit}, store.ListOptions{})
	if err != nil {
		return nil, err
	}

	heights := make([]any, len(page.Results))
	for i, b := range page.Results {
		heights[i] = b.Height
	}
	return map[string]any{"heights": heights, "total_count": page.TotalCount}, nil
}

func (h *Harness) searchTransactions(ctx context.Context, step Step) (map[string]any, error) {
	records, sorting, err := searchArgs(step)
	if err != nil {
		return nil, err
	}
	page, err := h.store.Transactions().Search(ctx, records, sorting,
		store.Pagination{Offset: step.Offset, Limit: step.Limit}, store.ListOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]any, len(page.Results))
	for i, tx := range page.Results {
		results[i] = map[string]any{
			"height":   tx.BlockHeight,
			"sequence": tx.Sequence,
			"amount":   tx.Amount.String(),
		}
	}
	return map[string]any{"results": results, "total_count": page.TotalCount}, nil
}

func searchArgs(step Step) (criteria.OrRecords, []querysql.Sort, error) {
	var records criteria.OrRecords
	if step.Criteria != nil {
		var err error
		records, err = criteria.FromDocument(step.Criteria)
		if err != nil {
			return nil, nil, err
		}
	}
	sorting := make([]querysql.Sort, 0, len(step.Sort))
	for _, s := range step.Sort {
		parsed, err := querysql.ParseSort(s)
		if err != nil {
			return nil, nil, &stepError{code: ErrCodeInvalidSort, err: err}
		}
		sorting = append(sorting, parsed)
	}
	return records, sorting, nil
}

// saveRounds stores rounds 1..n for two delegates.
func (h *Harness) saveRounds(ctx context.Context, n int) (map[string]any, error) {
	records := make([]ledger.Round, 0, 2*n)
	for r := int64(1); r <= int64(n); r++ {
		records = append(records,
			ledger.Round{PublicKey: "pkA", Round: r, Balance: big.NewInt(100 * r)},
			ledger.Round{PublicKey: "pkB", Round: r, Balance: big.NewInt(50 * r)})
	}
	if err := h.store.RoundRecords().SaveRounds(ctx, records); err != nil {
		return nil, err
	}
	latest, err := h.store.RoundRecords().GetLatestRound(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"latest_round": latest}, nil
}

func (h *Harness) tip(ctx context.Context) (map[string]any, error) {
	latest, found, err := h.store.Blocks().FindLatest(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]any{"tip": int64(0)}, nil
	}
	return map[string]any{"tip": latest.Height}, nil
}

// syncChain rewinds the builder to the stored tip.
func (h *Harness) syncChain(ctx context.Context) error {
	latest, found, err := h.store.Blocks().FindLatest(ctx)
	if err != nil {
		return err
	}
	if !found {
		h.chain.Rewind(0)
		return nil
	}
	h.chain.Rewind(latest.Height)
	return nil
}

type stepError struct {
	code string
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// ErrorCode maps an error to the code reported in traces.
func ErrorCode(err error) string {
	var corruption *store.CorruptionError
	if errors.As(err, &corruption) {
		return string(corruption.Code)
	}
	var schema *querysql.SchemaError
	if errors.As(err, &schema) {
		return string(schema.Code)
	}
	var step *stepError
	if errors.As(err, &step) {
		return step.code
	}
	if criteria.IsInvalid(err) {
		return ErrCodeInvalidCriteria
	}
	return ErrCodeFailed
}
