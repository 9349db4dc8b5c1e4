package status

import "os"

// Code is the externally visible state of a managed server.
type Code string

const (
	NewSetup Code = "NEW_SETUP"
	Pending  Code = "PENDING"
	Running  Code = "RUNNING"
	Stopped  Code = "STOPPED"
	Error    Code = "ERROR"
)

// Override values reported by the companion plugin.
const (
	OverridePending = "pending"
	OverrideRunning = "running"
)

// Inputs carries everything Resolve needs. ExitCode is nil when no exit has
// been recorded for the server.
type Inputs struct {
	FreshInstall bool
	Override     string // OverridePending, OverrideRunning or ""
	HandleAlive  bool
	ExitCode     *int
}

// Resolve combines filesystem heuristics, the external override, local handle
// liveness and the last exit code into one status. Check order matters:
// a fresh install pre-empts everything, and the override pre-empts local
// inference but never the fresh-install check.
func Resolve(in Inputs) Code {
	if in.FreshInstall {
		return NewSetup
	}
	switch in.Override {
	case OverridePending:
		return Pending
	case OverrideRunning:
		return Running
	}
	if in.HandleAlive && in.ExitCode == nil {
		return Running
	}
	if !in.HandleAlive && in.ExitCode != nil && *in.ExitCode != 0 {
		return Error
	}
	return Stopped
}

// placeholders are files an untouched installation may contain without
// counting as "set up".
var placeholders = map[string]bool{
	"eula.txt": true,
}

// FreshInstall reports whether dir looks like a never-started installation:
// missing, empty, or containing only placeholder files.
func FreshInstall(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	for _, e := range entries {
		if !placeholders[e.Name()] {
			return false
		}
	}
	return true
}
