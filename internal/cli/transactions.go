package cli

import (
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/store"
)

// NewTransactionsCommand creates the transactions command group.
func NewTransactionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txs"},
		Short:   "Query transactions, fees and HTLC locks",
	}
	cmd.AddCommand(newTransactionsGetCommand(rootOpts))
	cmd.AddCommand(newTransactionsSearchCommand(rootOpts))
	cmd.AddCommand(newTransactionsFeesCommand(rootOpts))
	cmd.AddCommand(newTransactionsHtlcCommand(rootOpts))
	return cmd
}

func newTransactionsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Show transactions by id with their block timestamp",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				txs, err := s.store.Transactions().FindByIDsWithBlockTimestamp(cmd.Context(), args)
				if err != nil {
					return s.out.Fail("failed to read transactions", err)
				}
				if len(txs) == 0 {
					_ = s.out.Error(ErrCodeNotFound, "no transaction found", args)
					return NewExitError(ExitFailure, "transactions not found")
				}

				if s.out.Format == "json" {
					return s.out.Success(txs)
				}
				for _, tx := range txs {
					fmt.Fprintf(s.out.Writer, "[block time %d] ", tx.BlockTimestamp)
					writeTransaction(s.out.Writer, tx.Transaction)
				}
				return nil
			})
		},
	}
}

func newTransactionsSearchCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search transactions with criteria",
		Long: `Search transactions. Besides the stored fields, "address" matches
sender or recipient, and "senderId" resolves an address to its public key
through the configured wallet index.`,
		Example: `  ledgerdb transactions search --criteria '{"address":"AddrB","fee":{"from":100}}'
  ledgerdb transactions search --criteria '{"asset":{"delegate":{"username":"dave"}}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, sorting, err := flags.parse()
			if err != nil {
				return formatter(cmd, rootOpts).Fail("invalid search", err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				page, opts := s.listOptions(flags)
				result, err := s.store.Transactions().Search(cmd.Context(), records, sorting, page, opts)
				if err != nil {
					return s.out.Fail("search failed", err)
				}

				if s.out.Format == "json" {
					return s.out.Success(result)
				}
				for _, tx := range result.Results {
					writeTransaction(s.out.Writer, tx)
				}
				fmt.Fprintf(s.out.Writer, "%d of %s transaction(s)\n", len(result.Results), countLabel(result.TotalCount, result.CountIsEstimate))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newTransactionsFeesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		since  int64
		minFee string
	)

	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Show fee statistics per transaction type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, ok := new(big.Int).SetString(minFee, 10)
			if !ok || threshold.Sign() < 0 {
				out := formatter(cmd, rootOpts)
				_ = out.Error(ErrCodeInvalidArgument, fmt.Sprintf("--min-fee %q is not a non-negative integer", minFee), nil)
				return NewExitError(ExitCommandError, "invalid --min-fee")
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				stats, err := s.store.Transactions().GetFeeStatistics(cmd.Context(), since, threshold)
				if err != nil {
					return s.out.Fail("failed to read fee statistics", err)
				}

				if s.out.Format == "json" {
					return s.out.Success(stats)
				}
				if len(stats) == 0 {
					fmt.Fprintln(s.out.Writer, "No transactions")
				}
				for _, f := range stats {
					fmt.Fprintf(s.out.Writer, "%d/%d avg=%s min=%s max=%s sum=%s\n",
						f.TypeGroup, f.Type, f.Avg, f.Min, f.Max, f.Sum)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "only transactions with timestamp >= since")
	cmd.Flags().StringVar(&minFee, "min-fee", "0", "only transactions with fee >= min-fee")
	return cmd
}

// HtlcResult is the JSON payload of transactions htlc.
type HtlcResult struct {
	Open     []ledger.Transaction `json:"open"`
	Claimed  []store.LockBalance  `json:"claimed"`
	Refunded []store.LockBalance  `json:"refunded"`
}

func newTransactionsHtlcCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "htlc",
		Short: "Show open HTLC locks and claimed/refunded lock balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				ctx := cmd.Context()
				repo := s.store.Transactions()

				var (
					result HtlcResult
					err    error
				)
				if result.Open, err = repo.GetOpenHtlcLocks(ctx); err != nil {
					return s.out.Fail("failed to read open locks", err)
				}
				if result.Claimed, err = repo.GetClaimedHtlcLockBalances(ctx); err != nil {
					return s.out.Fail("failed to read claimed locks", err)
				}
				if result.Refunded, err = repo.GetRefundedHtlcLockBalances(ctx); err != nil {
					return s.out.Fail("failed to read refunded locks", err)
				}

				if s.out.Format == "json" {
					return s.out.Success(result)
				}
				w := s.out.Writer
				fmt.Fprintf(w, "Open locks: %d\n", len(result.Open))
				for _, tx := range result.Open {
					fmt.Fprint(w, "  ")
					writeTransaction(w, tx)
				}
				fmt.Fprintln(w, "Claimed (by recipient):")
				for _, b := range result.Claimed {
					fmt.Fprintf(w, "  %s %s\n", b.Key, b.Amount)
				}
				fmt.Fprintln(w, "Refunded (by sender):")
				for _, b := range result.Refunded {
					fmt.Fprintf(w, "  %s %s\n", b.Key, b.Amount)
				}
				return nil
			})
		},
	}
}

func writeTransaction(w io.Writer, tx ledger.Transaction) {
	fmt.Fprintf(w, "%d:%d %s type=%d/%d sender=%s recipient=%s amount=%s fee=%s\n",
		tx.BlockHeight, tx.Sequence, tx.ID, tx.TypeGroup, tx.Type,
		tx.SenderPublicKey, tx.RecipientID, tx.Amount, tx.Fee)
}
