package updater

import (
	"path/filepath"

	"github.com/cjudd/esphome-selective-updates/internal/config"
)

// Environment overrides for every file the updater touches. The defaults
// match the Home Assistant add-on filesystem layout; standalone installs
// point these somewhere writable.
const (
	EnvOptionsPath   = "UPDATER_OPTIONS_PATH"
	EnvStatePath     = "UPDATER_STATE_PATH"
	EnvProgressPath  = "UPDATER_PROGRESS_PATH"
	EnvLogPath       = "UPDATER_LOG_PATH"
	EnvConfigDir     = "UPDATER_ESPHOME_CONFIG_DIR"
	EnvBuildsDir     = "UPDATER_BUILDS_DIR"
	EnvHistoryDBPath = "UPDATER_HISTORY_DB_PATH"
)

// Paths collects every host-side file location the updater reads or writes.
type Paths struct {
	Options   string
	State     string
	Progress  string
	LogFile   string
	ConfigDir string
	Dashboard string
	BuildsDir string
	HistoryDB string
}

// DefaultPaths resolves the add-on layout, honoring environment overrides.
func DefaultPaths() Paths {
	configDir := config.String(EnvConfigDir, "/config/esphome")
	return Paths{
		Options:   config.String(EnvOptionsPath, "/data/options.json"),
		State:     config.String(EnvStatePath, "/data/state.json"),
		Progress:  config.String(EnvProgressPath, "/config/esphome_update_progress.json"),
		LogFile:   config.String(EnvLogPath, "/config/esphome_smart_update.log"),
		ConfigDir: configDir,
		Dashboard: filepath.Join(configDir, ".dashboard.json"),
		BuildsDir: config.String(EnvBuildsDir, filepath.Join(configDir, "builds")),
		HistoryDB: config.String(EnvHistoryDBPath, "/data/history.sqlite"),
	}
}
