package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	updater "github.com/cjudd/esphome-selective-updates"
	"github.com/cjudd/esphome-selective-updates/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent update runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := updater.DefaultPaths()
			store, err := history.Open(paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), flagLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, run := range runs {
				mode := ""
				if run.DryRun {
					mode = " (dry run)"
				}
				finished := "unfinished"
				if !run.FinishedAt.IsZero() {
					finished = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(out, "run %d  %s  %s%s  total=%d done=%d failed=%d skipped=%d\n",
					run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), finished, mode,
					run.Total, run.Done, run.Failed, run.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
