package main

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	updater "github.com/cjudd/esphome-selective-updates"
)

func newPlanCmd() *cobra.Command {
	var flagOptions string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which devices the next run would update",
		Long: `Runs discovery and filtering only: no container commands, no progress
mutation. Useful for checking allow-lists and staleness before a real run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := updater.DefaultPaths()
			if flagOptions != "" {
				paths.Options = flagOptions
			}
			opts, err := updater.LoadOptions(paths.Options)
			if err != nil {
				log.Warn().Err(err).Msg("options file unusable, planning with defaults")
			}
			progress, err := updater.LoadProgress(paths.Progress)
			if err != nil {
				log.Warn().Err(err).Msg("progress file unreadable, planning from empty progress")
			}

			devices, err := updater.DiscoverDevices(paths.ConfigDir)
			if err != nil {
				return err
			}
			oracle := updater.NewVersionOracle(paths.Dashboard)
			queue, skipReasons := updater.FilterDevices(devices, opts, progress, oracle)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d device(s) discovered, %d queued for update\n\n", len(devices), len(queue))
			for i, dev := range queue {
				fmt.Fprintf(out, "  %2d. %s (target %s)\n", i+1, dev.Name, dev.Target())
			}
			if len(skipReasons) > 0 {
				fmt.Fprintf(out, "\nexcluded:\n")
				names := make([]string, 0, len(skipReasons))
				for name := range skipReasons {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "  %s: %s\n", name, skipReasons[name])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagOptions, "options", "", "Options file (.json or .yaml) overriding $"+updater.EnvOptionsPath)
	return cmd
}
