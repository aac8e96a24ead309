package updater

import "context"

// ContainerRuntime is the entire surface the updater needs from the
// container layer. The ESPHome toolchain runs inside a named container; the
// updater only checks it exists, runs commands in it, and copies built
// artifacts out of it.
type ContainerRuntime interface {
	// Exists reports whether the named container is present.
	Exists(ctx context.Context, name string) bool
	// Exec runs a command inside the container, streaming its output to the
	// updater's own stdout/stderr, and returns the exit code. The error is
	// non-nil only when the command could not be run at all.
	Exec(ctx context.Context, name string, args ...string) (int, error)
	// ExecCapture runs a command inside the container and returns the exit
	// code together with combined stdout/stderr.
	ExecCapture(ctx context.Context, name string, args ...string) (int, string, error)
	// CopyOut copies src inside the container to dst on the host.
	CopyOut(ctx context.Context, name, src, dst string) error
}

// HostDiagnostics is implemented by runtimes that can report on their own
// availability, for the pre-flight checks.
type HostDiagnostics interface {
	// SocketPath returns the runtime control socket found on the host, or
	// "" when none is present.
	SocketPath() string
	// CLIVersion returns the runtime CLI version string.
	CLIVersion(ctx context.Context) (string, error)
	// DaemonCheck verifies the runtime daemon answers requests.
	DaemonCheck(ctx context.Context) error
}
