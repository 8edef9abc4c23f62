//go:build windows

package transcoder

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminate kills the process outright; Windows has no graceful SIGTERM.
func terminate(proc *os.Process, exited <-chan struct{}, _, timeout time.Duration) error {
	if proc == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}

	_ = proc.Kill()

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}
