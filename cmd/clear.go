package main

import (
	"fmt"

	"github.com/spf13/cobra"

	updater "github.com/cjudd/esphome-selective-updates"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "clear {progress|log}",
		Short:     "Clear the progress or log file",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"progress", "log"},
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := updater.DefaultPaths()
			switch args[0] {
			case "progress":
				if err := updater.NewProgress().Save(paths.Progress); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "progress cleared: %s\n", paths.Progress)
			case "log":
				if err := updater.ClearLogFile(paths.LogFile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "log cleared: %s\n", paths.LogFile)
			}
			return nil
		},
	}
	return cmd
}
