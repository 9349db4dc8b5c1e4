package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one supervised run of a game server: one row per session,
// keyed by Uniq so restarts of the daemon cannot double-insert a session.
type Record struct {
	ID        int64
	Name      string
	PID       int
	StartedAt time.Time
	StoppedAt sql.NullTime
	Running   bool
	ExitCode  sql.NullInt64
	Uniq      string
	UpdatedAt time.Time
}

// Key derives the session's unique key from identity fields.
func (r Record) Key() string {
	return UniqueKey(r.Name, r.PID, r.StartedAt)
}

// UniqueKey builds the session key from the server name, the supervisor
// child's PID and its start time.
func UniqueKey(name string, pid int, startedAt time.Time) string {
	return fmt.Sprintf("%s|%d|%d", name, pid, startedAt.UTC().UnixNano())
}

// Store persists server session history.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordStart(ctx context.Context, rec Record) error
	RecordStop(ctx context.Context, uniq string, stoppedAt time.Time, exitCode *int) error
	// GetByName returns the most recent sessions for a server, newest first.
	GetByName(ctx context.Context, name string, limit int) ([]Record, error)
	// CloseOpenSessions marks every row still flagged running as stopped.
	// Called once at daemon boot: a session left open in the store means the
	// previous daemon died without observing the exit.
	CloseOpenSessions(ctx context.Context, stoppedAt time.Time) (int64, error)
	Close() error
}
