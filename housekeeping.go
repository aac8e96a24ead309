package updater

import (
	"os"

	"github.com/rs/zerolog/log"
)

// EnvAddonVersion carries the running add-on version, set by the supervisor.
const EnvAddonVersion = "ADDON_VERSION"

// Housekeep applies the log/progress clearing policies before a run: clear
// on version change, clear on start, and the one-shot clear-now triggers.
// One-shot triggers latch a consumed flag in state so they fire once and
// stay quiet until the option is switched off and on again. Returns the
// progress record to use for this run (replaced when cleared).
func Housekeep(paths Paths, opts Options, state *State, progress *Progress) *Progress {
	addonVersion := os.Getenv(EnvAddonVersion)

	if opts.AlwaysClearLogOnVersionChange && addonVersion != "" && addonVersion != state.LastVersion {
		clearFile(paths.LogFile, "log")
		log.Info().Str("from", state.LastVersion).Str("to", addonVersion).Msg("add-on version changed, log cleared")
		state.LastVersion = addonVersion
		saveStateLogged(paths.State, *state)
	}

	if opts.ClearLogOnStart {
		clearFile(paths.LogFile, "log")
		log.Info().Msg("log cleared (clear_log_on_start)")
	}

	if opts.ClearLogNow && !state.ClearLogNowConsumed {
		clearFile(paths.LogFile, "log")
		log.Info().Msg("log cleared (clear_log_now trigger)")
		state.ClearLogNowConsumed = true
		saveStateLogged(paths.State, *state)
	} else if !opts.ClearLogNow && state.ClearLogNowConsumed {
		state.ClearLogNowConsumed = false
		saveStateLogged(paths.State, *state)
	}

	if opts.ClearProgressOnStart {
		progress = NewProgress()
		saveProgressLogged(paths.Progress, progress)
		log.Info().Msg("progress cleared (clear_progress_on_start)")
	}

	if opts.ClearProgressNow && !state.ClearProgressNowConsumed {
		progress = NewProgress()
		saveProgressLogged(paths.Progress, progress)
		log.Info().Msg("progress cleared (clear_progress_now trigger)")
		state.ClearProgressNowConsumed = true
		saveStateLogged(paths.State, *state)
	} else if !opts.ClearProgressNow && state.ClearProgressNowConsumed {
		state.ClearProgressNowConsumed = false
		saveStateLogged(paths.State, *state)
	}

	return progress
}

// ClearLogFile empties the log file, creating it when absent.
func ClearLogFile(path string) error {
	return truncateFile(path)
}

func clearFile(path, what string) {
	if err := truncateFile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msgf("failed to clear %s file", what)
	}
}

func saveStateLogged(path string, st State) {
	if err := SaveState(path, st); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to save state")
	}
}

func saveProgressLogged(path string, p *Progress) {
	if err := p.Save(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to save progress")
	}
}
