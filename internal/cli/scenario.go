package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/harness"
)

// ScenarioOutcome is the JSON payload entry of scenario run.
type ScenarioOutcome struct {
	Name   string               `json:"name"`
	File   string               `json:"file"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// NewScenarioCommand creates the scenario command group.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run scripted ledger scenarios",
	}

	var showTrace bool
	run := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios, each against a fresh temporary SQLite ledger",
		Long: `Run YAML ledger scenarios. Each scenario forges deterministic blocks,
applies saves, rollbacks and searches, and checks assertions on the final
state. The command fails if any scenario fails.`,
		Example: `  ledgerdb scenario run testdata/scenarios/*.yaml
  ledgerdb scenario run rollback.yaml --trace --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, rootOpts, args, showTrace)
		},
	}
	run.Flags().BoolVar(&showTrace, "trace", false, "include the step trace")
	cmd.AddCommand(run)
	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RootOptions, files []string, showTrace bool) error {
	out := formatter(cmd, opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)

	outcomes := make([]ScenarioOutcome, 0, len(files))
	failed := 0
	for _, file := range files {
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			_ = out.Error(ErrCodeInvalidArgument, fmt.Sprintf("%s: %v", file, err), nil)
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		out.VerboseLog("running %s (%s)", scenario.Name, file)

		result, err := harness.Run(cmd.Context(), scenario, harness.WithLogger(logger))
		if err != nil {
			_ = out.Error(ErrCodeGeneric, fmt.Sprintf("%s: %v", scenario.Name, err), nil)
			return WrapExitError(ExitCommandError, "failed to run scenario", err)
		}

		outcome := ScenarioOutcome{Name: scenario.Name, File: file, Pass: result.Pass}
		if len(result.Errors) > 0 {
			outcome.Errors = result.Errors
		}
		if showTrace {
			outcome.Trace = result.Trace
		}
		if !result.Pass {
			failed++
		}
		outcomes = append(outcomes, outcome)
	}

	if out.Format == "json" {
		if err := out.Success(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			status := "PASS"
			if !o.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(out.Writer, "%s %s\n", status, o.Name)
			for _, e := range o.Errors {
				fmt.Fprintf(out.Writer, "  %s\n", e)
			}
			for _, ev := range o.Trace {
				fmt.Fprintf(out.Writer, "  [%d] %s %v -> %s %v\n", ev.Seq, ev.Op, ev.Args, ev.Outcome, ev.Result)
			}
		}
		fmt.Fprintf(out.Writer, "%d scenario(s), %d failed\n", len(outcomes), failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}
