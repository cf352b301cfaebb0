package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/ledger"
)

// RoundResult is the JSON payload of rounds get.
type RoundResult struct {
	Round     int64          `json:"round"`
	Delegates []ledger.Round `json:"delegates"`
}

// NewRoundsCommand creates the rounds command group.
func NewRoundsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Query delegate round records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [round]",
		Short: "Show the delegates of a round (default: the latest stored round)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var round int64
			if len(args) == 1 {
				parsed, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || parsed < 1 {
					_ = formatter(cmd, rootOpts).Error(ErrCodeInvalidArgument, fmt.Sprintf("round %q must be a positive integer", args[0]), nil)
					return NewExitError(ExitCommandError, "invalid round")
				}
				round = parsed
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				ctx := cmd.Context()
				repo := s.store.RoundRecords()

				if round == 0 {
					latest, err := repo.GetLatestRound(ctx)
					if err != nil {
						return s.out.Fail("failed to read latest round", err)
					}
					round = latest
				}
				delegates, err := repo.FindByRound(ctx, round)
				if err != nil {
					return s.out.Fail("failed to read round", err)
				}

				if s.out.Format == "json" {
					return s.out.Success(RoundResult{Round: round, Delegates: delegates})
				}
				fmt.Fprintf(s.out.Writer, "Round %d: %d delegate(s)\n", round, len(delegates))
				for _, d := range delegates {
					fmt.Fprintf(s.out.Writer, "  %s %s\n", d.PublicKey, d.Balance)
				}
				return nil
			})
		},
	})
	return cmd
}
