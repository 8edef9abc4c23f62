//go:build !windows

package transcoder

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup starts the command as a group leader so the whole tree can
// be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminate sends SIGTERM to the group, waits grace, then SIGKILL and waits
// up to timeout for exited to close.
func terminate(proc *os.Process, exited <-chan struct{}, grace, timeout time.Duration) error {
	if proc == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}

	pid := proc.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		_ = proc.Signal(syscall.SIGTERM)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		_ = proc.Kill()
	}

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}
