package tracker

import (
	"sync"

	"github.com/loykin/craftd/internal/status"
)

// Tracker holds per-server lifecycle truth reported by the companion plugin:
// an ephemeral status override and the last known inner-runtime exit code.
// The override wins over locally inferred state while present.
//
// After a local exit has been observed the id is fenced: late plugin reports
// can no longer resurrect a dead server's apparent status. The fence is
// released by Arm on the next start. Exit codes are not fenced; a late
// server_stop report may still refine the recorded code.
type Tracker struct {
	mu        sync.Mutex
	overrides map[int64]string
	exits     map[int64]int
	fenced    map[int64]bool
}

func New() *Tracker {
	return &Tracker{
		overrides: make(map[int64]string),
		exits:     make(map[int64]int),
		fenced:    make(map[int64]bool),
	}
}

// Arm prepares id for a new lifecycle: releases the fence, forgets the
// previous run's exit code and sets the optimistic pending override.
func (t *Tracker) Arm(id int64) {
	t.mu.Lock()
	delete(t.fenced, id)
	delete(t.exits, id)
	t.overrides[id] = status.OverridePending
	t.mu.Unlock()
}

// SetOverride stores an externally reported status. It returns false when the
// id is fenced (a local exit was already observed) and the report is dropped.
func (t *Tracker) SetOverride(id int64, ov string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fenced[id] {
		return false
	}
	t.overrides[id] = ov
	return true
}

// SetLastExit records the inner runtime's return code.
func (t *Tracker) SetLastExit(id int64, code int) {
	t.mu.Lock()
	t.exits[id] = code
	t.mu.Unlock()
}

// Clear removes the override and fences the id. Called exclusively by the
// supervisor's exit-watcher.
func (t *Tracker) Clear(id int64) {
	t.mu.Lock()
	delete(t.overrides, id)
	t.fenced[id] = true
	t.mu.Unlock()
}

// Override returns the current override, if any.
func (t *Tracker) Override(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ov, ok := t.overrides[id]
	return ov, ok
}

// LastExit returns the recorded exit code or nil.
func (t *Tracker) LastExit(id int64) *int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code, ok := t.exits[id]; ok {
		c := code
		return &c
	}
	return nil
}
