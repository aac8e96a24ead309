package updater

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// secretsStem is the reserved file name holding shared secrets; it never
// describes a device.
const secretsStem = "secrets"

// Device is one ESPHome device definition discovered from the config
// directory. Recomputed on every scan, never persisted.
type Device struct {
	// Name is the definition file stem and the identity used in progress
	// tracking, allow-lists and the dashboard state file.
	Name string
	// Node is the logical hostname declared inside the definition, used to
	// build the mDNS target when no static address is configured.
	Node string
	// ConfigFile is the definition file name, e.g. "kitchen.yaml".
	ConfigFile string
	// Address is the statically configured IPv4 address, or "" when the
	// device relies on mDNS resolution.
	Address string
}

// Target returns the address the OTA upload should be pointed at.
func (d Device) Target() string {
	if d.Address != "" {
		return d.Address
	}
	return d.Node + ".local"
}

var manualIPRe = regexp.MustCompile(`manual_ip\s*:\s*([0-9]{1,3}(?:\.[0-9]{1,3}){3})`)

// DiscoverDevices scans configDir for device definitions, ordered
// lexicographically by file name. An unreadable definition still yields a
// name-only device entry; only a missing directory is an error.
func DiscoverDevices(configDir string) ([]Device, error) {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read config dir %s", configDir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	devices := make([]Device, 0, len(names))
	for _, fileName := range names {
		stem := strings.TrimSuffix(fileName, ".yaml")
		if stem == secretsStem {
			continue
		}
		text := ""
		if data, err := os.ReadFile(filepath.Join(configDir, fileName)); err == nil {
			text = string(data)
		} else {
			log.Warn().Err(err).Str("config", fileName).Msg("device definition unreadable, keeping name-only entry")
		}
		node := parseNodeName(text)
		if node == "" {
			node = stem
		}
		devices = append(devices, Device{
			Name:       stem,
			Node:       node,
			ConfigFile: fileName,
			Address:    extractManualIP(text),
		})
	}
	return devices, nil
}

// extractManualIP pulls a statically configured dotted-quad address out of
// the definition text, or "" when none is declared.
func extractManualIP(text string) string {
	if m := manualIPRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// parseNodeName extracts the device's logical hostname. It scans the
// indented block under a top-level `esphome:` line for a `name:` field;
// when no such block exists it falls back to the first top-level `name:`.
// Returns "" when neither is present, letting the caller use the file stem.
//
// Block scanning (rather than one regexp over the whole text) keeps nested
// sections like `wifi: -> ap: -> name:` from being mistaken for the node
// name.
func parseNodeName(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") != "esphome:" {
			continue
		}
		// Walk the indented block that follows.
		for _, blockLine := range lines[i+1:] {
			if strings.TrimSpace(blockLine) == "" {
				continue
			}
			if !strings.HasPrefix(blockLine, " ") && !strings.HasPrefix(blockLine, "\t") {
				break // next top-level section
			}
			if name := nameFieldValue(blockLine); name != "" {
				return name
			}
		}
		return ""
	}
	// No esphome: block at all; accept a top-level name field.
	for _, line := range lines {
		if name := nameFieldValue(line); name != "" {
			return name
		}
	}
	return ""
}

// nameFieldValue returns the value of a `name:` field on line, or "".
// The value ends at whitespace or an inline comment.
func nameFieldValue(line string) string {
	trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
	rest, ok := strings.CutPrefix(trimmed, "name")
	if !ok {
		return ""
	}
	rest = strings.TrimLeft(rest, " \t")
	rest, ok = strings.CutPrefix(rest, ":")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	if idx := strings.IndexAny(rest, " \t#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
