package updater

import (
	"os"
	"path/filepath"
	"testing"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	return Paths{
		Options:   filepath.Join(dir, "options.json"),
		State:     filepath.Join(dir, "state.json"),
		Progress:  filepath.Join(dir, "progress.json"),
		LogFile:   filepath.Join(dir, "update.log"),
		ConfigDir: filepath.Join(dir, "esphome"),
		Dashboard: filepath.Join(dir, ".dashboard.json"),
		BuildsDir: filepath.Join(dir, "builds"),
		HistoryDB: filepath.Join(dir, "history.db"),
	}
}

func seedLog(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("old log lines\n"), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}
}

func logSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	return info.Size()
}

func TestHousekeepClearLogNowFiresOnce(t *testing.T) {
	t.Setenv(EnvAddonVersion, "")
	paths := testPaths(t)
	opts := DefaultOptions()
	opts.ClearLogNow = true
	state := State{}

	seedLog(t, paths.LogFile)
	progress := Housekeep(paths, opts, &state, NewProgress())
	if logSize(t, paths.LogFile) != 0 {
		t.Fatal("trigger should clear the log on first run")
	}
	if !state.ClearLogNowConsumed {
		t.Fatal("consumed flag should latch after firing")
	}
	if progress == nil {
		t.Fatal("housekeep must always return a progress record")
	}

	// The flag stays set, so the trigger must not fire again.
	seedLog(t, paths.LogFile)
	Housekeep(paths, opts, &state, NewProgress())
	if logSize(t, paths.LogFile) == 0 {
		t.Fatal("trigger fired twice while still consumed")
	}

	// Switching the option off rearms the trigger.
	opts.ClearLogNow = false
	Housekeep(paths, opts, &state, NewProgress())
	if state.ClearLogNowConsumed {
		t.Fatal("consumed flag should reset once the option is off")
	}
	persisted, err := LoadState(paths.State)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if persisted.ClearLogNowConsumed {
		t.Fatal("reset flag should be persisted")
	}
}

func TestHousekeepClearProgressNowReplacesRecord(t *testing.T) {
	t.Setenv(EnvAddonVersion, "")
	paths := testPaths(t)
	opts := DefaultOptions()
	opts.ClearProgressNow = true
	state := State{}

	old := NewProgress()
	old.Record("kitchen", OutcomeDone)
	got := Housekeep(paths, opts, &state, old)
	if got.DoneCount() != 0 {
		t.Fatal("trigger should return a fresh progress record")
	}
	if !state.ClearProgressNowConsumed {
		t.Fatal("consumed flag should latch")
	}
	persisted, err := LoadProgress(paths.Progress)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if persisted.DoneCount() != 0 {
		t.Fatal("cleared progress should be persisted empty")
	}
}

func TestHousekeepVersionChangeClearsLog(t *testing.T) {
	t.Setenv(EnvAddonVersion, "2.1.0")
	paths := testPaths(t)
	opts := DefaultOptions()
	state := State{LastVersion: "2.0.0"}

	seedLog(t, paths.LogFile)
	Housekeep(paths, opts, &state, NewProgress())
	if logSize(t, paths.LogFile) != 0 {
		t.Fatal("version change should clear the log")
	}
	if state.LastVersion != "2.1.0" {
		t.Fatalf("state should record the new version, got %q", state.LastVersion)
	}

	// Same version next run: no clearing.
	seedLog(t, paths.LogFile)
	Housekeep(paths, opts, &state, NewProgress())
	if logSize(t, paths.LogFile) == 0 {
		t.Fatal("log cleared without a version change")
	}
}

func TestHousekeepVersionChangeDisabled(t *testing.T) {
	t.Setenv(EnvAddonVersion, "3.0.0")
	paths := testPaths(t)
	opts := DefaultOptions()
	opts.AlwaysClearLogOnVersionChange = false
	state := State{LastVersion: "2.0.0"}

	seedLog(t, paths.LogFile)
	Housekeep(paths, opts, &state, NewProgress())
	if logSize(t, paths.LogFile) == 0 {
		t.Fatal("log cleared despite the policy being off")
	}
}

func TestHousekeepClearOnStart(t *testing.T) {
	t.Setenv(EnvAddonVersion, "")
	paths := testPaths(t)
	opts := DefaultOptions()
	opts.ClearLogOnStart = true
	opts.ClearProgressOnStart = true
	state := State{}

	seedLog(t, paths.LogFile)
	old := NewProgress()
	old.Record("kitchen", OutcomeFailed)
	got := Housekeep(paths, opts, &state, old)
	if logSize(t, paths.LogFile) != 0 {
		t.Fatal("clear_log_on_start should empty the log")
	}
	if got.FailedCount() != 0 {
		t.Fatal("clear_progress_on_start should discard previous outcomes")
	}
}
