package updater

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Prober answers best-effort liveness questions about a device address.
type Prober interface {
	Reachable(ctx context.Context, host string) bool
}

// PingProber probes with the system ping utility. Two invocation variants
// cover the `-w` vs `-W` deadline flag difference between ping
// implementations. The probe fails open: a missing ping binary or a probe
// that cannot finish in time must never block an update.
type PingProber struct {
	// AttemptTimeout caps one ping invocation. Defaults to 3s.
	AttemptTimeout time.Duration
}

var pingVariants = [][]string{
	{"-c", "1", "-w", "1"},
	{"-c", "1", "-W", "1"},
}

// Reachable reports whether host answered a single ping.
func (p PingProber) Reachable(ctx context.Context, host string) bool {
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	for _, variant := range pingVariants {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		args := append(append([]string{}, variant...), host)
		cmd := exec.CommandContext(attemptCtx, "ping", args...)
		err := cmd.Run()
		cancel()
		if err == nil {
			return true
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return true // no ping utility on this host
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return true // inconclusive, let the upload attempt decide
		}
	}
	return false
}
