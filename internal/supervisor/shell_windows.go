//go:build windows

package supervisor

import (
	"os/exec"
	"strings"
)

// buildCommand constructs an *exec.Cmd for a configured launch command using
// cmd.exe when shell features are required.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return exec.Command("cmd", "/C", "exit 0")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?\"'()") {
		// #nosec G204
		return exec.Command("cmd", "/C", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
