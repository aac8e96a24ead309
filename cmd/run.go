package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	updater "github.com/cjudd/esphome-selective-updates"
	"github.com/cjudd/esphome-selective-updates/pkg/history"
	"github.com/cjudd/esphome-selective-updates/providers/docker"
)

func newRunCmd() *cobra.Command {
	var (
		flagOptions   string
		flagDryRun    bool
		flagContainer string
		flagNoHistory bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full update pass over the device fleet",
		Long: `Discovers device definitions, filters to stale devices, and compiles and
uploads firmware for each one, persisting progress after every device.
SIGINT/SIGTERM stop the run at the next device boundary with progress saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := updater.DefaultPaths()
			if flagOptions != "" {
				paths.Options = flagOptions
			}

			attachLogFile(paths.LogFile)

			opts, err := updater.LoadOptions(paths.Options)
			if err != nil {
				log.Warn().Err(err).Msg("options file unusable, running with defaults")
			}
			if flagDryRun {
				opts.DryRun = true
			}
			if flagContainer != "" {
				opts.ESPHomeContainer = flagContainer
			}

			runner := &updater.Runner{
				Paths:   paths,
				Opts:    opts,
				Runtime: docker.New(),
				Diag:    docker.New(),
			}
			if !flagNoHistory {
				store, err := history.Open(paths.HistoryDB)
				if err != nil {
					log.Warn().Err(err).Msg("history database unavailable, continuing without it")
				} else {
					defer store.Close()
					runner.Recorder = store
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = runner.Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&flagOptions, "options", "", "Options file (.json or .yaml) overriding $"+updater.EnvOptionsPath)
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Report what would be updated without compiling or uploading")
	cmd.Flags().StringVar(&flagContainer, "container", "", "ESPHome container name overriding the options file")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Skip recording this run in the history database")

	return cmd
}

// attachLogFile tees structured log output into the add-on log file in
// addition to stdout. The file is opened append-mode; housekeeping may
// truncate it mid-run, which append-mode handles cleanly.
func attachLogFile(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("log file not writable, logging to stdout only")
		return
	}
	console := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
	file := zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
}
