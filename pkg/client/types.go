package client

import "time"

// ServerDetail is one managed server as reported by the daemon.
type ServerDetail struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	PID      int    `json:"pid,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// Session is one recorded run of a server process.
type Session struct {
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Running   bool       `json:"running"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

// ErrorResponse is the daemon's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
