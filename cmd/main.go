package main

import (
	"context"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	updater "github.com/cjudd/esphome-selective-updates"
	"github.com/cjudd/esphome-selective-updates/internal/config"
)

// Exit statuses. Preflight and interruption get their own codes so the
// supervisor can tell configuration problems from user-requested stops.
const (
	exitOK        = 0
	exitFault     = 1
	exitPreflight = 2
	exitInterrupt = 130
)

var rootCmd = &cobra.Command{
	Use:   "esphome-updater",
	Short: "Selective bulk OTA updates for ESPHome devices",
	Long: `esphome-updater compiles and uploads firmware only for devices whose
deployed version is stale, skips unreachable devices, and persists progress
after every device so an interrupted run resumes where it left off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}).
		With().Timestamp().Logger()
	rootCmd.AddCommand(
		newRunCmd(),
		newPlanCmd(),
		newHistoryCmd(),
		newClearCmd(),
	)
	_ = config.Ensure()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !pkgerrors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("esphome-updater failed")
		}
		os.Exit(exitStatus(err))
	}
}

func exitStatus(err error) int {
	switch {
	case err == nil:
		return exitOK
	case pkgerrors.Is(err, updater.ErrPreflight):
		return exitPreflight
	case pkgerrors.Is(err, context.Canceled):
		return exitInterrupt
	default:
		return exitFault
	}
}
