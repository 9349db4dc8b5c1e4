//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func configureSysProcAttr(cmd *exec.Cmd) {}

// killPID terminates pid. "Already gone" is success.
func killPID(pid int) error {
	if pid < 0 {
		pid = -pid
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	_ = p.Kill()
	return nil
}

func isBrokenPipe(err error) bool { return false }
