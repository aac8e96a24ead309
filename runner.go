package updater

import (
	"context"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/cjudd/esphome-selective-updates/pkg/history"
)

// Summary is the final accounting of one run. Counts reflect the cumulative
// progress sets, so a resumed run reports devices finished in earlier runs
// as done.
type Summary struct {
	TotalDevices  int
	Queued        int
	Done          int
	Failed        int
	Skipped       int
	FailedDevices []string
	DryRun        bool
	Interrupted   bool
}

// Runner sequences one update run: housekeeping, pre-flight, discovery,
// filtering, then the per-device compile/upload loop with durable progress
// after every device. Devices are processed strictly one at a time; the
// ESPHome container cannot run two builds concurrently and OTA bandwidth
// serializes uploads anyway.
type Runner struct {
	Paths   Paths
	Opts    Options
	Runtime ContainerRuntime
	// Diag provides host-level runtime checks; nil skips them (the
	// container and config-dir checks still run).
	Diag HostDiagnostics
	// Prober gates devices with a static address; nil uses PingProber.
	Prober Prober
	// Recorder receives run history; nil disables recording.
	Recorder history.Recorder
}

// Run executes the full orchestration. Interruption via ctx is not a fault:
// progress made so far is already persisted, the summary is still produced,
// and ctx.Err() is returned so the caller can exit with the interrupt
// status. ErrPreflight-wrapped errors mean no device was touched.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	state, err := LoadState(r.Paths.State)
	if err != nil {
		log.Warn().Err(err).Msg("state file unreadable, starting fresh")
	}
	progress, err := LoadProgress(r.Paths.Progress)
	if err != nil {
		log.Warn().Err(err).Msg("progress file unreadable, starting fresh")
	}

	progress = Housekeep(r.Paths, r.Opts, &state, progress)

	if err := Preflight(ctx, r.Diag, r.Runtime, r.Opts.ESPHomeContainer, r.Paths.ConfigDir); err != nil {
		return nil, err
	}

	toolchain := &Toolchain{
		Runtime:   r.Runtime,
		Container: r.Opts.ESPHomeContainer,
		BuildsDir: r.Paths.BuildsDir,
	}
	if version := toolchain.Version(ctx); version != "unknown" {
		log.Info().Str("esphome", version).Msg("toolchain version")
	}
	if r.Opts.DryRun {
		log.Warn().Msg("dry run mode: no compile or upload will be performed")
	}

	devices, err := DiscoverDevices(r.Paths.ConfigDir)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrPreflight, err.Error())
	}
	log.Info().Int("devices", len(devices)).Msg("device discovery complete")
	if len(devices) == 0 {
		log.Info().Msg("no devices to process")
		return r.summarize(len(devices), 0, progress, false), nil
	}

	oracle := NewVersionOracle(r.Paths.Dashboard)
	queue, skipReasons := FilterDevices(devices, r.Opts, progress, oracle)
	logSkipReasons(skipReasons)
	log.Info().Int("queued", len(queue)).Int("excluded", len(skipReasons)).Msg("filtering complete")
	if len(queue) == 0 {
		log.Info().Msg("no devices need updating, nothing to do")
		return r.summarize(len(devices), 0, progress, false), nil
	}

	runID := r.beginRun(ctx)
	interrupted := false

	for i, dev := range queue {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		log.Info().
			Str("device", dev.Name).
			Int("position", i+1).
			Int("queued", len(queue)).
			Msg("processing device")

		start := time.Now()
		outcome, reason := r.updateDevice(ctx, toolchain, oracle, dev)
		progress.Record(dev.Name, outcome)
		saveProgressLogged(r.Paths.Progress, progress)
		r.recordDevice(runID, dev.Name, outcome, reason, time.Since(start))

		switch outcome {
		case OutcomeDone:
			log.Info().Str("device", dev.Name).Msg("device completed")
		case OutcomeFailed:
			log.Error().Str("device", dev.Name).Str("reason", reason).Msg("device failed")
		case OutcomeSkipped:
			log.Warn().Str("device", dev.Name).Str("reason", reason).Msg("device skipped")
		}

		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if i < len(queue)-1 {
			if !sleepInterruptible(ctx, r.Opts.DelayBetweenUpdates) {
				interrupted = true
				break
			}
		}
	}

	summary := r.summarize(len(devices), len(queue), progress, interrupted)
	r.finishRun(runID, summary)
	logSummary(summary)
	if interrupted {
		log.Warn().Msg("stop requested, progress saved")
		return summary, ctx.Err()
	}
	return summary, nil
}

// updateDevice runs the per-device state machine: resolve target, gate on
// reachability, then compile and upload (or mark done in dry-run mode).
func (r *Runner) updateDevice(ctx context.Context, toolchain *Toolchain, oracle *VersionOracle, dev Device) (Outcome, string) {
	deployed, current := oracle.Versions(dev.Name)
	log.Info().
		Str("config", dev.ConfigFile).
		Str("deployed", orUnknown(deployed)).
		Str("current", orUnknown(current)).
		Msg("device versions")

	target := dev.Target()
	if dev.Address == "" {
		log.Info().Str("target", target).Msg("no manual IP configured, using mDNS")
	}

	if r.Opts.SkipOffline && dev.Address != "" {
		if !r.prober().Reachable(ctx, dev.Address) {
			return OutcomeSkipped, "offline (ping failed)"
		}
	}

	if r.Opts.DryRun {
		log.Info().Str("device", dev.Name).Msg("dry run: would compile and upload")
		return OutcomeDone, "dry run"
	}

	if _, err := toolchain.Compile(ctx, dev.ConfigFile, dev.Name); err != nil {
		if pkgerrors.Is(err, context.Canceled) || pkgerrors.Is(err, context.DeadlineExceeded) {
			log.Warn().Str("device", dev.Name).Msg("stop requested during compile")
			return OutcomeSkipped, "interrupted during compile"
		}
		if pkgerrors.Is(err, ErrArtifactMissing) {
			log.Error().Err(err).Str("device", dev.Name).Msg("could not locate firmware binary")
			return OutcomeFailed, "firmware artifact not found"
		}
		log.Error().Err(err).Str("device", dev.Name).Msg("compilation failed")
		return OutcomeFailed, "compile failed"
	}

	ok, out := toolchain.Upload(ctx, dev.ConfigFile, target)
	if ok {
		log.Info().Str("device", dev.Name).Str("target", target).Msg("OTA upload successful")
		return OutcomeDone, ""
	}
	if out != "" {
		log.Error().Str("device", dev.Name).Msg("OTA upload failed, trailing output follows")
		for _, line := range strings.Split(out, "\n") {
			log.Error().Msg("  " + line)
		}
	}
	return OutcomeFailed, "upload failed"
}

func (r *Runner) prober() Prober {
	if r.Prober != nil {
		return r.Prober
	}
	return PingProber{}
}

func (r *Runner) summarize(total, queued int, progress *Progress, interrupted bool) *Summary {
	return &Summary{
		TotalDevices:  total,
		Queued:        queued,
		Done:          progress.DoneCount(),
		Failed:        progress.FailedCount(),
		Skipped:       progress.SkippedCount(),
		FailedDevices: progress.FailedNames(),
		DryRun:        r.Opts.DryRun,
		Interrupted:   interrupted,
	}
}

// beginRun opens a history record; history failures never fail the run.
func (r *Runner) beginRun(ctx context.Context) int64 {
	if r.Recorder == nil {
		return 0
	}
	id, err := r.Recorder.BeginRun(ctx, r.Opts.DryRun)
	if err != nil {
		log.Warn().Err(err).Msg("history: begin run failed")
		return 0
	}
	return id
}

func (r *Runner) recordDevice(runID int64, device string, outcome Outcome, reason string, elapsed time.Duration) {
	if r.Recorder == nil || runID == 0 {
		return
	}
	// Progress is already on disk; history writes must not block shutdown.
	err := r.Recorder.RecordDevice(context.Background(), runID, history.DeviceEvent{
		Device:   device,
		Outcome:  string(outcome),
		Reason:   reason,
		Duration: elapsed,
	})
	if err != nil {
		log.Warn().Err(err).Str("device", device).Msg("history: record device failed")
	}
}

func (r *Runner) finishRun(runID int64, summary *Summary) {
	if r.Recorder == nil || runID == 0 {
		return
	}
	err := r.Recorder.FinishRun(context.Background(), runID, history.RunTotals{
		Total:   summary.TotalDevices,
		Done:    summary.Done,
		Failed:  summary.Failed,
		Skipped: summary.Skipped,
	})
	if err != nil {
		log.Warn().Err(err).Msg("history: finish run failed")
	}
}

// sleepInterruptible waits the configured number of seconds between devices,
// waking at one-second granularity so a stop request is honored promptly.
// Returns false when ctx was cancelled during the wait.
func sleepInterruptible(ctx context.Context, seconds int) bool {
	for i := 0; i < seconds; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return true
}

func logSkipReasons(skipReasons map[string]string) {
	if len(skipReasons) == 0 {
		return
	}
	names := make([]string, 0, len(skipReasons))
	for name := range skipReasons {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Info().Str("device", name).Str("reason", skipReasons[name]).Msg("excluded")
	}
}

func logSummary(s *Summary) {
	ev := log.Info().
		Int("total", s.TotalDevices).
		Int("done", s.Done).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Bool("dry_run", s.DryRun)
	if s.Interrupted {
		ev = ev.Bool("interrupted", true)
	}
	ev.Msg("run summary")
	for _, name := range s.FailedDevices {
		log.Warn().Str("device", name).Msg("failed device")
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
