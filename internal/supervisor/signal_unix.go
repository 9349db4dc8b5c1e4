//go:build !windows

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	// New process group so a force-kill can take the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killPID sends SIGKILL to pid (negative pid targets the process group).
// "Already gone" is success; only permission-denied is surfaced.
func killPID(pid int) error {
	err := syscall.Kill(pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if errors.Is(err, syscall.EPERM) {
		return err
	}
	return nil
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
