package updater

import (
	"context"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrPreflight marks an environment fault found before any device was
// touched: callers map it to a dedicated exit status.
var ErrPreflight = pkgerrors.New("pre-flight checks failed")

// Preflight verifies the environment end to end: runtime socket, runtime
// CLI, daemon connectivity, the ESPHome container, and the device config
// directory. Any failure aborts the run before progress is mutated. diag
// may be nil when the runtime has no host diagnostics to offer.
func Preflight(ctx context.Context, diag HostDiagnostics, runtime ContainerRuntime, container, configDir string) error {
	if diag != nil {
		if socket := diag.SocketPath(); socket == "" {
			log.Error().Msg("container runtime socket not available")
			log.Info().Msg("hint: Protection mode is likely ON; toggle it off in the add-on Info tab")
			return pkgerrors.Wrap(ErrPreflight, "runtime socket not found")
		} else {
			log.Info().Str("socket", socket).Msg("runtime socket found")
		}
		version, err := diag.CLIVersion(ctx)
		if err != nil {
			log.Error().Err(err).Msg("container runtime CLI not available")
			return pkgerrors.Wrap(ErrPreflight, "runtime CLI unavailable")
		}
		log.Info().Str("version", version).Msg("runtime CLI available")
		if err := diag.DaemonCheck(ctx); err != nil {
			log.Error().Err(err).Msg("container runtime daemon not responding")
			return pkgerrors.Wrap(ErrPreflight, "runtime daemon unreachable")
		}
		log.Info().Msg("runtime daemon communication ok")
	}

	if !runtime.Exists(ctx, container) {
		log.Error().Str("container", container).Msg("ESPHome container not found")
		log.Info().Msg("hint: check the ESPHome add-on is running and the esphome_container option matches its container name")
		log.Info().Str("example", DefaultContainer).Msg("hint: the official add-on container name")
		return pkgerrors.Wrapf(ErrPreflight, "container %s not found", container)
	}
	log.Info().Str("container", container).Msg("ESPHome container found")

	info, err := os.Stat(configDir)
	if err != nil || !info.IsDir() {
		log.Error().Str("dir", configDir).Msg("ESPHome config directory not found")
		log.Info().Msg("hint: set up the ESPHome add-on with device configurations first")
		return pkgerrors.Wrapf(ErrPreflight, "config directory %s missing", configDir)
	}
	matches, _ := filepath.Glob(filepath.Join(configDir, "*.yaml"))
	if len(matches) == 0 {
		log.Error().Str("dir", configDir).Msg("no device configurations found")
		log.Info().Msg("hint: add device YAML files to the config directory first")
		return pkgerrors.Wrapf(ErrPreflight, "no device configurations in %s", configDir)
	}
	log.Info().Int("configs", len(matches)).Str("dir", configDir).Msg("config directory accessible")
	return nil
}
