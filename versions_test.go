package updater

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDashboard(t *testing.T, content string) *VersionOracle {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".dashboard.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dashboard: %v", err)
	}
	return NewVersionOracle(path)
}

func TestVersionsLookup(t *testing.T) {
	oracle := writeDashboard(t, `{
		"kitchen": {"deployed_version": "2025.7.0", "current_version": "2025.8.1"},
		"bedroom": {"deployed_version": "2025.8.1", "current_version": "2025.8.1"}
	}`)
	deployed, current := oracle.Versions("kitchen")
	if deployed != "2025.7.0" || current != "2025.8.1" {
		t.Fatalf("unexpected pair (%q, %q)", deployed, current)
	}
	deployed, current = oracle.Versions("absent")
	if deployed != "" || current != "" {
		t.Fatalf("expected unknown pair for absent device, got (%q, %q)", deployed, current)
	}
}

func TestVersionsMissingOrMalformedDashboard(t *testing.T) {
	oracle := NewVersionOracle(filepath.Join(t.TempDir(), "missing.json"))
	if deployed, current := oracle.Versions("kitchen"); deployed != "" || current != "" {
		t.Fatalf("expected unknown pair for missing file, got (%q, %q)", deployed, current)
	}
	oracle = writeDashboard(t, "{not json")
	if deployed, current := oracle.Versions("kitchen"); deployed != "" || current != "" {
		t.Fatalf("expected unknown pair for malformed file, got (%q, %q)", deployed, current)
	}
}

func TestNeedsUpdate(t *testing.T) {
	oracle := writeDashboard(t, `{
		"stale": {"deployed_version": "1.1.0", "current_version": "1.2.0"},
		"fresh": {"deployed_version": "1.2.0", "current_version": "1.2.0"},
		"partial": {"current_version": "1.2.0"}
	}`)
	progress := NewProgress()

	needs, reason := oracle.NeedsUpdate("stale", progress)
	if !needs {
		t.Fatal("stale device should need an update")
	}
	if !strings.Contains(reason, "1.1.0") || !strings.Contains(reason, "1.2.0") {
		t.Fatalf("reason should carry both versions, got %q", reason)
	}

	needs, reason = oracle.NeedsUpdate("fresh", progress)
	if needs {
		t.Fatal("up-to-date device should not need an update")
	}
	if !strings.Contains(reason, "1.2.0") {
		t.Fatalf("up-to-date reason should carry the shared version, got %q", reason)
	}

	if needs, reason = oracle.NeedsUpdate("partial", progress); !needs || reason != "version information unavailable" {
		t.Fatalf("partial versions should count as stale, got (%v, %q)", needs, reason)
	}
	if needs, reason = oracle.NeedsUpdate("unknown", progress); !needs || reason != "version information unavailable" {
		t.Fatalf("unknown device should count as stale, got (%v, %q)", needs, reason)
	}

	progress.Record("stale", OutcomeDone)
	if needs, reason = oracle.NeedsUpdate("stale", progress); needs || reason != "already updated this run" {
		t.Fatalf("done device should be excluded, got (%v, %q)", needs, reason)
	}
}

func TestNeedsUpdateIsRepeatable(t *testing.T) {
	oracle := writeDashboard(t, `{"a": {"deployed_version": "1.0", "current_version": "2.0"}}`)
	progress := NewProgress()
	needs1, reason1 := oracle.NeedsUpdate("a", progress)
	needs2, reason2 := oracle.NeedsUpdate("a", progress)
	if needs1 != needs2 || reason1 != reason2 {
		t.Fatalf("decision must be stable across queries: (%v, %q) vs (%v, %q)", needs1, reason1, needs2, reason2)
	}
}
