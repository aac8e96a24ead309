package updater

import (
	"github.com/rs/zerolog/log"
)

// FilterDevices narrows the discovered device list to the ordered work
// queue for this run and reports a reason for every excluded device.
//
// Policies apply in fixed order: allow-list, start-from offset, done-set and
// staleness exclusion, then the per-run cap. Scan order is preserved
// throughout; the cap truncates without marking the overflow as skipped. An
// empty result is a valid outcome, not an error.
func FilterDevices(devices []Device, opts Options, progress *Progress, oracle *VersionOracle) (queue []Device, skipReasons map[string]string) {
	skipReasons = make(map[string]string)

	if len(opts.UpdateOnlyThese) > 0 {
		allowed := make(map[string]struct{}, len(opts.UpdateOnlyThese))
		for _, name := range opts.UpdateOnlyThese {
			allowed[name] = struct{}{}
		}
		kept := devices[:0:0]
		for _, dev := range devices {
			if _, ok := allowed[dev.Name]; ok {
				kept = append(kept, dev)
			}
		}
		devices = kept
		log.Info().Int("allowlist", len(opts.UpdateOnlyThese)).Msg("allow-list active")
	}

	if opts.StartFromDevice != "" {
		idx := -1
		for i, dev := range devices {
			if dev.Name == opts.StartFromDevice {
				idx = i
				break
			}
		}
		if idx >= 0 {
			devices = devices[idx:]
			log.Info().Str("device", opts.StartFromDevice).Msg("starting from device")
		} else {
			log.Warn().Str("device", opts.StartFromDevice).Msg("start_from_device not found, processing full list")
		}
	}

	for _, dev := range devices {
		if progress != nil && progress.IsDone(dev.Name) {
			skipReasons[dev.Name] = "already updated this run"
			continue
		}
		needs, reason := oracle.NeedsUpdate(dev.Name, progress)
		if !needs {
			skipReasons[dev.Name] = reason
			continue
		}
		queue = append(queue, dev)
	}

	if opts.MaxDevicesPerRun > 0 && len(queue) > opts.MaxDevicesPerRun {
		log.Warn().
			Int("max_devices_per_run", opts.MaxDevicesPerRun).
			Int("deferred", len(queue)-opts.MaxDevicesPerRun).
			Msg("limiting devices this run")
		queue = queue[:opts.MaxDevicesPerRun]
	}

	return queue, skipReasons
}
