package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/store"
)

// NewBlocksCommand creates the blocks command group.
func NewBlocksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Query and roll back blocks",
	}
	cmd.AddCommand(newBlocksGetCommand(rootOpts))
	cmd.AddCommand(newBlocksSearchCommand(rootOpts))
	cmd.AddCommand(newBlocksStatsCommand(rootOpts))
	cmd.AddCommand(newBlocksRollbackCommand(rootOpts))
	return cmd
}

func newBlocksGetCommand(rootOpts *RootOptions) *cobra.Command {
	var withTransactions bool

	cmd := &cobra.Command{
		Use:   "get <id|height>",
		Short: "Show one block by id or height",
		Example: `  ledgerdb blocks get 42
  ledgerdb blocks get 42 --transactions --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				ctx := cmd.Context()
				repo := s.store.Blocks()

				var (
					block ledger.Block
					found bool
					err   error
				)
				if height, perr := strconv.ParseInt(args[0], 10, 64); perr == nil {
					block, found, err = repo.FindByHeight(ctx, height)
				} else {
					block, found, err = repo.FindByID(ctx, args[0])
				}
				if err != nil {
					return s.out.Fail("failed to read block", err)
				}
				if !found {
					_ = s.out.Error(ErrCodeNotFound, fmt.Sprintf("block %s not found", args[0]), nil)
					return NewExitError(ExitFailure, "block not found")
				}

				if withTransactions {
					blocks, err := repo.FindByHeightRangeWithTransactions(ctx, block.Height, block.Height)
					if err != nil {
						return s.out.Fail("failed to read transactions", err)
					}
					block = blocks[0]
				}

				if s.out.Format == "json" {
					return s.out.Success(block)
				}
				writeBlock(s.out.Writer, block)
				for _, tx := range block.Transactions {
					fmt.Fprint(s.out.Writer, "  ")
					writeTransaction(s.out.Writer, tx)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withTransactions, "transactions", false, "include the block's transactions")
	return cmd
}

func newBlocksSearchCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search blocks with criteria",
		Long: `Search blocks. Criteria is a JSON object (fields are ANDed) or an
array of objects (ORed). A field value is a literal, a {"from","to"} range,
or an array of alternatives.`,
		Example: `  ledgerdb blocks search --criteria '{"height":{"from":100,"to":200}}' --sort height:desc
  ledgerdb blocks search --criteria '[{"generatorPublicKey":"03ab"},{"height":1}]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, sorting, err := flags.parse()
			if err != nil {
				out := formatter(cmd, rootOpts)
				return out.Fail("invalid search", err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				page, opts := s.listOptions(flags)
				result, err := s.store.Blocks().Search(cmd.Context(), records, sorting, page, opts)
				if err != nil {
					return s.out.Fail("search failed", err)
				}

				if s.out.Format == "json" {
					return s.out.Success(result)
				}
				for _, b := range result.Results {
					writeBlock(s.out.Writer, b)
				}
				fmt.Fprintf(s.out.Writer, "%d of %s block(s)\n", len(result.Results), countLabel(result.TotalCount, result.CountIsEstimate))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// BlockStatsResult is the JSON payload of blocks stats.
type BlockStatsResult struct {
	store.Statistics
	Forgers []store.ForgerStatistics `json:"forgers,omitempty"`
	Rewards []store.BlockReward      `json:"rewards,omitempty"`
}

func newBlocksStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		forgers    bool
		rewardFrom int64
		rewardTo   int64
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show chain totals, per-forger totals and block rewards",
		Example: `  ledgerdb blocks stats
  ledgerdb blocks stats --forgers --rewards-from 1 --rewards-to 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				ctx := cmd.Context()
				repo := s.store.Blocks()

				stats, err := repo.GetStatistics(ctx)
				if err != nil {
					return s.out.Fail("failed to read statistics", err)
				}
				result := BlockStatsResult{Statistics: stats}
				if forgers {
					if result.Forgers, err = repo.GetDelegatesForgedBlocks(ctx); err != nil {
						return s.out.Fail("failed to read forger statistics", err)
					}
				}
				if rewardTo > 0 {
					if result.Rewards, err = repo.GetBlockRewards(ctx, rewardFrom, rewardTo); err != nil {
						return s.out.Fail("failed to read block rewards", err)
					}
				}

				if s.out.Format == "json" {
					return s.out.Success(result)
				}
				w := s.out.Writer
				fmt.Fprintf(w, "Blocks:       %d\n", stats.Count)
				fmt.Fprintf(w, "Transactions: %d\n", stats.NumberOfTransactions)
				fmt.Fprintf(w, "Total amount: %s\n", stats.TotalAmount)
				fmt.Fprintf(w, "Total fee:    %s\n", stats.TotalFee)
				fmt.Fprintf(w, "Total reward: %s\n", stats.TotalReward)
				if len(result.Forgers) > 0 {
					fmt.Fprintln(w, "\nForgers:")
					for _, f := range result.Forgers {
						fmt.Fprintf(w, "  %s: %d block(s), fees %s, rewards %s, last height %d\n",
							f.GeneratorPublicKey, f.Blocks, f.TotalFees, f.TotalRewards, f.LastHeight)
					}
				}
				if len(result.Rewards) > 0 {
					fmt.Fprintln(w, "\nRewards:")
					for _, r := range result.Rewards {
						fmt.Fprintf(w, "  %d %s %s\n", r.Height, r.GeneratorPublicKey, r.Reward)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&forgers, "forgers", false, "include per-forger totals")
	cmd.Flags().Int64Var(&rewardFrom, "rewards-from", 1, "first height of the reward listing")
	cmd.Flags().Int64Var(&rewardTo, "rewards-to", 0, "last height of the reward listing (0 disables it)")
	return cmd
}

// RollbackResult is the JSON payload of blocks rollback.
type RollbackResult struct {
	Deleted int   `json:"deleted"`
	Tip     int64 `json:"tip"`
}

func newBlocksRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		count   int
		heights []int64
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Delete the newest blocks with their transactions and later rounds",
		Long: `Delete blocks from the top of the chain. Either --count removes the
newest N blocks, or --heights removes exactly the listed blocks, which must
form the tail of the chain. Deletions that would leave a gap are refused and
nothing is changed.`,
		Example: `  ledgerdb blocks rollback --count 3
  ledgerdb blocks rollback --heights 98,99,100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (count > 0) == (len(heights) > 0) {
				out := formatter(cmd, rootOpts)
				_ = out.Error(ErrCodeInvalidArgument, "exactly one of --count or --heights is required", nil)
				return NewExitError(ExitCommandError, "exactly one of --count or --heights is required")
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				ctx := cmd.Context()
				repo := s.store.Blocks()

				deleted := count
				if count > 0 {
					if err := repo.DeleteTopBlocks(ctx, count); err != nil {
						return s.out.Fail("rollback refused", err)
					}
				} else {
					blocks, err := repo.FindByHeights(ctx, heights)
					if err != nil {
						return s.out.Fail("failed to read blocks", err)
					}
					if len(blocks) != len(heights) {
						_ = s.out.Error(ErrCodeNotFound, fmt.Sprintf("found %d of %d blocks", len(blocks), len(heights)), heights)
						return NewExitError(ExitFailure, "blocks not found")
					}
					if err := repo.DeleteBlocks(ctx, blocks); err != nil {
						return s.out.Fail("rollback refused", err)
					}
					deleted = len(blocks)
				}

				var tip int64
				latest, found, err := repo.FindLatest(ctx)
				if err != nil {
					return s.out.Fail("failed to read tip", err)
				}
				if found {
					tip = latest.Height
				}

				result := RollbackResult{Deleted: deleted, Tip: tip}
				if s.out.Format == "json" {
					return s.out.Success(result)
				}
				fmt.Fprintf(s.out.Writer, "Deleted %d block(s); tip is now %d\n", deleted, tip)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of blocks to remove from the top")
	cmd.Flags().Int64SliceVar(&heights, "heights", nil, "heights of the blocks to remove")
	return cmd
}

func writeBlock(w io.Writer, b ledger.Block) {
	fmt.Fprintf(w, "%d %s txs=%d amount=%s fee=%s generator=%s\n",
		b.Height, b.ID, b.NumberOfTransactions, b.TotalAmount, b.TotalFee, b.GeneratorPublicKey)
}
