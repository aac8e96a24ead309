// Package docker implements the updater's container runtime surface with
// the docker CLI, matching the access the ESPHome add-on itself uses.
package docker

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// checkTimeout bounds the cheap existence/version/daemon probes.
const checkTimeout = 5 * time.Second

// killDelay is how long a cancelled child gets to exit after SIGTERM before
// it is killed.
const killDelay = 10 * time.Second

var socketPaths = []string{"/run/docker.sock", "/var/run/docker.sock"}

// Runtime shells out to the docker CLI. Every child process runs in its own
// process group; cancelling the context SIGTERMs the whole group so
// subprocesses spawned by the toolchain (PlatformIO workers and the like)
// terminate with it.
type Runtime struct{}

// New returns a docker CLI runtime.
func New() *Runtime { return &Runtime{} }

// Exists reports whether the named container is known to the daemon.
func (r *Runtime) Exists(ctx context.Context, name string) bool {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	cmd := command(checkCtx, "docker", "inspect", name)
	return cmd.Run() == nil
}

// Exec runs a command inside the container, streaming output to the
// updater's stdout/stderr, and returns the exit code.
func (r *Runtime) Exec(ctx context.Context, name string, args ...string) (int, error) {
	argv := append([]string{"exec", name}, args...)
	cmd := command(ctx, "docker", argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return runExitCode(cmd, "docker exec")
}

// ExecCapture runs a command inside the container and returns the exit code
// with combined stdout/stderr.
func (r *Runtime) ExecCapture(ctx context.Context, name string, args ...string) (int, string, error) {
	argv := append([]string{"exec", name}, args...)
	cmd := command(ctx, "docker", argv...)
	out, err := cmd.CombinedOutput()
	code, runErr := exitCode(err, "docker exec")
	return code, string(out), runErr
}

// CopyOut copies src inside the container to dst on the host.
func (r *Runtime) CopyOut(ctx context.Context, name, src, dst string) error {
	cmd := command(ctx, "docker", "cp", name+":"+src, dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return pkgerrors.Wrapf(err, "docker cp %s:%s: %s", name, src, strings.TrimSpace(string(out)))
	}
	return nil
}

// SocketPath returns the first docker control socket present on the host.
func (r *Runtime) SocketPath() string {
	for _, path := range socketPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// CLIVersion returns the docker CLI version banner.
func (r *Runtime) CLIVersion(ctx context.Context) (string, error) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	out, err := command(checkCtx, "docker", "--version").Output()
	if err != nil {
		return "", pkgerrors.Wrap(err, "docker --version")
	}
	return strings.TrimSpace(string(out)), nil
}

// DaemonCheck verifies the daemon answers a trivial request.
func (r *Runtime) DaemonCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if out, err := command(checkCtx, "docker", "ps").CombinedOutput(); err != nil {
		return pkgerrors.Wrapf(err, "docker ps: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// command builds an exec.Cmd whose child runs in a fresh process group and
// whose cancellation signals that whole group.
func command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay
	return cmd
}

func runExitCode(cmd *exec.Cmd, what string) (int, error) {
	return exitCode(cmd.Run(), what)
}

// exitCode maps a command error to its exit code. Only a failure to run the
// command at all is reported as an error.
func exitCode(err error, what string) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if pkgerrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, pkgerrors.Wrap(err, what)
}
