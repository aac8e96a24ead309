package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// containerConfigDir is where the ESPHome container mounts the device
// definitions.
const containerConfigDir = "/config/esphome"

// uploadTailLines bounds how much failed-upload output is kept for the log.
const uploadTailLines = 40

var (
	// ErrCompileFailed marks a non-zero exit from `esphome compile`.
	ErrCompileFailed = pkgerrors.New("compile failed")
	// ErrArtifactMissing marks a successful compile whose firmware binary
	// could not be located at any known build path.
	ErrArtifactMissing = pkgerrors.New("firmware artifact not found")
)

// Toolchain drives the ESPHome CLI inside the add-on container.
type Toolchain struct {
	Runtime   ContainerRuntime
	Container string
	// BuildsDir is the host directory compiled firmware is copied into.
	BuildsDir string
}

// Compile builds firmware for configFile and copies the resulting binary to
// BuildsDir, returning the host path. A cancelled context is returned as-is
// so the caller can tell interruption apart from a build fault.
func (t *Toolchain) Compile(ctx context.Context, configFile, deviceName string) (string, error) {
	log.Info().Str("device", deviceName).Str("config", configFile).Str("container", t.Container).Msg("compiling")

	code, err := t.Runtime.Exec(ctx, t.Container, "esphome", "compile", containerConfigDir+"/"+configFile)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "run esphome compile")
	}
	if code != 0 {
		return "", pkgerrors.Wrapf(ErrCompileFailed, "exit code %d", code)
	}
	return t.collectArtifact(ctx, configFile, deviceName)
}

// collectArtifact locates the compiled binary inside the container and
// copies it out. The PlatformIO layout is tried first; build directory
// suffixes vary between ESPHome releases, so the path is globbed and the
// first match wins. Known ambiguity: when several build-directory variants
// exist for a device the lexicographically first one is taken, which can be
// a leftover from an earlier differently-configured build.
func (t *Toolchain) collectArtifact(ctx context.Context, configFile, deviceName string) (string, error) {
	stem := strings.TrimSuffix(configFile, filepath.Ext(configFile))
	pioGlob := fmt.Sprintf("/data/build/%s*/.pioenvs/%s*/firmware.bin", stem, stem)
	legacy := fmt.Sprintf("%s/.esphome/build/%s/%s.bin", containerConfigDir, stem, stem)

	if err := os.MkdirAll(t.BuildsDir, 0o755); err != nil {
		return "", pkgerrors.Wrapf(err, "create builds dir %s", t.BuildsDir)
	}
	dst := filepath.Join(t.BuildsDir, stem+".bin")

	code, out, err := t.Runtime.ExecCapture(ctx, t.Container,
		"sh", "-lc", fmt.Sprintf("set -e; ls -1 %s 2>/dev/null | head -n1", pioGlob))
	if err == nil && code == 0 {
		if src := firstLine(out); src != "" {
			if copyErr := t.Runtime.CopyOut(ctx, t.Container, src, dst); copyErr == nil {
				log.Info().Str("device", deviceName).Str("src", src).Str("dst", dst).Msg("binary copied")
				return dst, nil
			}
		}
	}

	if copyErr := t.Runtime.CopyOut(ctx, t.Container, legacy, dst); copyErr == nil {
		log.Info().Str("device", deviceName).Str("src", legacy).Str("dst", dst).Msg("binary copied")
		return dst, nil
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", pkgerrors.Wrapf(ErrArtifactMissing, "device %s", deviceName)
}

// Upload performs the OTA upload for configFile against target. The ESPHome
// CLI's exit code is unreliable for uploads, so known success phrases in the
// captured output also count. On failure the returned output is truncated to
// the last 40 lines.
func (t *Toolchain) Upload(ctx context.Context, configFile, target string) (bool, string) {
	code, out, err := t.Runtime.ExecCapture(ctx, t.Container,
		"esphome", "upload", containerConfigDir+"/"+configFile, "--device", target)
	if err != nil {
		log.Error().Err(err).Str("config", configFile).Msg("run esphome upload")
		return false, lastLines(out, uploadTailLines)
	}
	success := code == 0 ||
		strings.Contains(out, "OTA successful") ||
		strings.Contains(out, "Successfully uploaded program")
	if success {
		return true, out
	}
	return false, lastLines(out, uploadTailLines)
}

var esphomeVersionRe = regexp.MustCompile(`(?:ESPHome|Version:)\s+([0-9]\S*)`)

// Version reports the ESPHome version inside the container, or "unknown".
func (t *Toolchain) Version(ctx context.Context) string {
	code, out, err := t.Runtime.ExecCapture(ctx, t.Container, "esphome", "version")
	if err != nil || code != 0 {
		return "unknown"
	}
	if m := esphomeVersionRe.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return "unknown"
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// lastLines returns the trailing n lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
