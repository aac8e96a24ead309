package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

// stubRuntime scripts container behavior for the toolchain and runner tests.
// Dispatch keys on the joined argv so each test declares exactly the commands
// it expects.
type stubRuntime struct {
	containers map[string]bool
	// exec answers Exec and ExecCapture calls. Missing entries exit 0.
	exec map[string]stubResult
	// copyFail lists in-container source paths whose CopyOut should fail.
	copyFail map[string]bool
	// calls records every invocation for assertions, prefixed with the verb.
	calls []string
}

type stubResult struct {
	code int
	out  string
	err  error
}

func newStubRuntime() *stubRuntime {
	return &stubRuntime{
		containers: map[string]bool{DefaultContainer: true},
		exec:       make(map[string]stubResult),
		copyFail:   make(map[string]bool),
	}
}

func (s *stubRuntime) Exists(ctx context.Context, name string) bool {
	s.calls = append(s.calls, "exists "+name)
	return s.containers[name]
}

func (s *stubRuntime) Exec(ctx context.Context, name string, args ...string) (int, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, "exec "+key)
	res := s.exec[key]
	return res.code, res.err
}

func (s *stubRuntime) ExecCapture(ctx context.Context, name string, args ...string) (int, string, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, "capture "+key)
	res := s.exec[key]
	return res.code, res.out, res.err
}

func (s *stubRuntime) CopyOut(ctx context.Context, name, src, dst string) error {
	s.calls = append(s.calls, "copy "+src)
	if s.copyFail[src] {
		return pkgerrors.New("no such file")
	}
	return os.WriteFile(dst, []byte("firmware"), 0o644)
}

func (s *stubRuntime) called(prefix string) bool {
	for _, call := range s.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func pioListKey(stem string) string {
	glob := fmt.Sprintf("/data/build/%s*/.pioenvs/%s*/firmware.bin", stem, stem)
	return fmt.Sprintf("sh -lc set -e; ls -1 %s 2>/dev/null | head -n1", glob)
}

func newTestToolchain(t *testing.T, runtime *stubRuntime) *Toolchain {
	t.Helper()
	return &Toolchain{
		Runtime:   runtime,
		Container: DefaultContainer,
		BuildsDir: filepath.Join(t.TempDir(), "builds"),
	}
}

func TestCompileCollectsPioArtifact(t *testing.T) {
	runtime := newStubRuntime()
	runtime.exec[pioListKey("kitchen")] = stubResult{out: "/data/build/kitchen-abc/.pioenvs/kitchen-abc/firmware.bin\n"}
	tc := newTestToolchain(t, runtime)

	path, err := tc.Compile(context.Background(), "kitchen.yaml", "kitchen")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if filepath.Base(path) != "kitchen.bin" {
		t.Fatalf("expected kitchen.bin artifact, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact not copied: %v", err)
	}
	if !runtime.called("copy /data/build/kitchen-abc") {
		t.Fatal("expected the first glob match to be copied")
	}
}

func TestCompileFallsBackToLegacyPath(t *testing.T) {
	runtime := newStubRuntime()
	runtime.exec[pioListKey("kitchen")] = stubResult{code: 1}
	tc := newTestToolchain(t, runtime)

	path, err := tc.Compile(context.Background(), "kitchen.yaml", "kitchen")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !runtime.called("copy /config/esphome/.esphome/build/kitchen/kitchen.bin") {
		t.Fatal("expected the legacy build path to be tried")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact not copied: %v", err)
	}
}

func TestCompileArtifactMissing(t *testing.T) {
	runtime := newStubRuntime()
	runtime.exec[pioListKey("kitchen")] = stubResult{code: 1}
	runtime.copyFail["/config/esphome/.esphome/build/kitchen/kitchen.bin"] = true
	tc := newTestToolchain(t, runtime)

	_, err := tc.Compile(context.Background(), "kitchen.yaml", "kitchen")
	if !pkgerrors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
}

func TestCompileNonZeroExit(t *testing.T) {
	runtime := newStubRuntime()
	runtime.exec["esphome compile /config/esphome/kitchen.yaml"] = stubResult{code: 1}
	tc := newTestToolchain(t, runtime)

	_, err := tc.Compile(context.Background(), "kitchen.yaml", "kitchen")
	if !pkgerrors.Is(err, ErrCompileFailed) {
		t.Fatalf("expected ErrCompileFailed, got %v", err)
	}
}

func TestCompileReturnsContextErrorOnCancel(t *testing.T) {
	runtime := newStubRuntime()
	tc := newTestToolchain(t, runtime)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tc.Compile(ctx, "kitchen.yaml", "kitchen")
	if !pkgerrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUploadSuccessByExitCode(t *testing.T) {
	runtime := newStubRuntime()
	runtime.exec["esphome upload /config/esphome/kitchen.yaml --device 10.0.0.5"] = stubResult{out: "done\n"}
	tc := newTestToolchain(t, runtime)

	ok, _ := tc.Upload(context.Background(), "kitchen.yaml", "10.0.0.5")
	if !ok {
		t.Fatal("exit code 0 should count as success")
	}
}

func TestUploadSuccessByPhrase(t *testing.T) {
	for _, phrase := range []string{"OTA successful", "Successfully uploaded program"} {
		runtime := newStubRuntime()
		runtime.exec["esphome upload /config/esphome/kitchen.yaml --device 10.0.0.5"] = stubResult{
			code: 1,
			out:  "noise\n" + phrase + "\nmore noise\n",
		}
		tc := newTestToolchain(t, runtime)
		if ok, _ := tc.Upload(context.Background(), "kitchen.yaml", "10.0.0.5"); !ok {
			t.Fatalf("phrase %q should count as success despite the exit code", phrase)
		}
	}
}

func TestUploadFailureTruncatesOutput(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	runtime := newStubRuntime()
	runtime.exec["esphome upload /config/esphome/kitchen.yaml --device 10.0.0.5"] = stubResult{code: 1, out: sb.String()}
	tc := newTestToolchain(t, runtime)

	ok, out := tc.Upload(context.Background(), "kitchen.yaml", "10.0.0.5")
	if ok {
		t.Fatal("non-zero exit without a success phrase must fail")
	}
	lines := strings.Split(out, "\n")
	if len(lines) != uploadTailLines {
		t.Fatalf("expected %d trailing lines, got %d", uploadTailLines, len(lines))
	}
	if lines[0] != "line 61" || lines[len(lines)-1] != "line 100" {
		t.Fatalf("unexpected tail window: first %q last %q", lines[0], lines[len(lines)-1])
	}
}

func TestVersionParsing(t *testing.T) {
	cases := []struct {
		out  string
		code int
		want string
	}{
		{out: "Version: 2025.8.1\n", want: "2025.8.1"},
		{out: "ESPHome 2024.12.4\n", want: "2024.12.4"},
		{out: "gibberish\n", want: "unknown"},
		{out: "Version: 2025.8.1\n", code: 1, want: "unknown"},
	}
	for _, tc := range cases {
		runtime := newStubRuntime()
		runtime.exec["esphome version"] = stubResult{code: tc.code, out: tc.out}
		toolchain := newTestToolchain(t, runtime)
		if got := toolchain.Version(context.Background()); got != tc.want {
			t.Fatalf("output %q code %d: expected %q, got %q", tc.out, tc.code, tc.want, got)
		}
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc\n", 2); got != "b\nc" {
		t.Fatalf("expected trailing two lines, got %q", got)
	}
	if got := lastLines("a\nb", 5); got != "a\nb" {
		t.Fatalf("short input must pass through, got %q", got)
	}
}
