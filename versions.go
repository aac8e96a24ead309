package updater

import (
	"fmt"
)

// dashboardEntry mirrors one device record in the ESPHome dashboard state
// file. The dashboard tool owns and mutates that file; we only read it.
type dashboardEntry struct {
	DeployedVersion string `json:"deployed_version"`
	CurrentVersion  string `json:"current_version"`
}

// VersionOracle answers staleness questions from the dashboard state file.
// It re-reads the file on every query and keeps no state of its own, so the
// same inputs always produce the same answer.
type VersionOracle struct {
	path string
}

// NewVersionOracle returns an oracle reading the dashboard state at path.
func NewVersionOracle(path string) *VersionOracle {
	return &VersionOracle{path: path}
}

// Versions returns the externally recorded (deployed, current) version pair
// for name. Either value is "" when the state file is missing, unreadable,
// or has no entry for the device.
func (o *VersionOracle) Versions(name string) (deployed, current string) {
	var dashboard map[string]dashboardEntry
	if err := readJSONFile(o.path, &dashboard); err != nil {
		return "", ""
	}
	entry, ok := dashboard[name]
	if !ok {
		return "", ""
	}
	return entry.DeployedVersion, entry.CurrentVersion
}

// NeedsUpdate decides whether the named device is stale, returning a
// human-readable reason either way. Unknown version information counts as
// stale: better to rebuild than to silently leave a device behind.
func (o *VersionOracle) NeedsUpdate(name string, progress *Progress) (bool, string) {
	if progress != nil && progress.IsDone(name) {
		return false, "already updated this run"
	}
	deployed, current := o.Versions(name)
	if deployed == "" || current == "" {
		return true, "version information unavailable"
	}
	if deployed != current {
		return true, fmt.Sprintf("deployed=%s, current=%s", deployed, current)
	}
	return false, fmt.Sprintf("already up-to-date (%s)", deployed)
}
