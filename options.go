package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultContainer is the container name of the official ESPHome add-on.
const DefaultContainer = "addon_15ef4d2f_esphome"

// Options is the per-run configuration snapshot. Unknown keys in the source
// file are ignored; missing keys keep their defaults.
type Options struct {
	OTAPassword         string   `json:"ota_password" yaml:"ota_password"`
	SkipOffline         bool     `json:"skip_offline" yaml:"skip_offline"`
	DelayBetweenUpdates int      `json:"delay_between_updates" yaml:"delay_between_updates"`
	ESPHomeContainer    string   `json:"esphome_container" yaml:"esphome_container"`
	DryRun              bool     `json:"dry_run" yaml:"dry_run"`
	MaxDevicesPerRun    int      `json:"max_devices_per_run" yaml:"max_devices_per_run"`
	StartFromDevice     string   `json:"start_from_device" yaml:"start_from_device"`
	UpdateOnlyThese     []string `json:"update_only_these" yaml:"update_only_these"`

	ClearLogNow                   bool `json:"clear_log_now" yaml:"clear_log_now"`
	ClearProgressNow              bool `json:"clear_progress_now" yaml:"clear_progress_now"`
	ClearLogOnStart               bool `json:"clear_log_on_start" yaml:"clear_log_on_start"`
	ClearProgressOnStart          bool `json:"clear_progress_on_start" yaml:"clear_progress_on_start"`
	AlwaysClearLogOnVersionChange bool `json:"always_clear_log_on_version_change" yaml:"always_clear_log_on_version_change"`
}

// DefaultOptions returns the baseline configuration every load starts from.
func DefaultOptions() Options {
	return Options{
		SkipOffline:                   true,
		DelayBetweenUpdates:           3,
		ESPHomeContainer:              DefaultContainer,
		AlwaysClearLogOnVersionChange: true,
	}
}

// LoadOptions reads the options file at path, overlaying it onto the
// defaults. The file format is chosen by extension: .yaml/.yml decode as
// YAML, anything else as JSON. A missing or unparsable file yields the
// defaults together with the load error so the caller can log a warning.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, pkgerrors.Wrapf(err, "read options %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		err = json.Unmarshal(data, &opts)
	}
	if err != nil {
		return DefaultOptions(), pkgerrors.Wrapf(err, "parse options %s", path)
	}
	opts.normalize()
	return opts, nil
}

func (o *Options) normalize() {
	if o.DelayBetweenUpdates < 0 {
		o.DelayBetweenUpdates = 0
	}
	if o.MaxDevicesPerRun < 0 {
		o.MaxDevicesPerRun = 0
	}
	if strings.TrimSpace(o.ESPHomeContainer) == "" {
		o.ESPHomeContainer = DefaultContainer
	}
	o.StartFromDevice = strings.TrimSpace(o.StartFromDevice)
	o.UpdateOnlyThese = normalizeNameList(o.UpdateOnlyThese)
}

// normalizeNameList trims and dedupes device names, preserving order.
func normalizeNameList(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
