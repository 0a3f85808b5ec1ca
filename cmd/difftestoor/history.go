package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRunID string
	historyCase  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs from the history database",
	Long: `Lists the most recent recorded runs. With --run the verdicts of one run are
shown, with --case the verdicts of one test program across runs.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of rows (0 for all)")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show the case verdicts of this run ID")
	historyCmd.Flags().StringVar(&historyCase, "case", "", "Show the verdict history of this test program")
	historyCmd.MarkFlagsMutuallyExclusive("run", "case")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.History.Enabled {
		return fmt.Errorf("history is not enabled in config")
	}

	ctx := cmd.Context()

	store := history.NewStore(log, &cfg.History)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop history store")
		}
	}()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	switch {
	case historyRunID != "":
		cases, err := store.ListCases(ctx, historyRunID)
		if err != nil {
			return err
		}

		fmt.Fprintln(tw, "CASE\tVERDICT\tDURATION\tREASON")

		for _, c := range cases {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				c.Name, c.Kind, time.Duration(c.DurationNs).Round(time.Millisecond), c.Reason)
		}
	case historyCase != "":
		cases, err := store.CaseHistory(ctx, historyCase, historyLimit)
		if err != nil {
			return err
		}

		fmt.Fprintln(tw, "RUN\tVERDICT\tDURATION\tREASON")

		for _, c := range cases {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				c.RunID, c.Kind, time.Duration(c.DurationNs).Round(time.Millisecond), c.Reason)
		}
	default:
		runs, err := store.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}

		fmt.Fprintln(tw, "RUN\tSTARTED\tCANDIDATE\tPASSED\tFAILED\tDISCOVERED\tINTERRUPTED")

		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%t\n",
				r.RunID, r.StartedAt.Format(time.RFC3339), r.CandidateLabel,
				r.Passed, r.Failed, r.Discovered, r.Interrupted)
		}
	}

	return tw.Flush()
}
