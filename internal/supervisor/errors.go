package supervisor

import "errors"

// ErrAlreadyRunning is returned by Start when a live handle exists for the
// server. Callers should treat it as non-fatal: the server is already moving
// in the requested direction.
var ErrAlreadyRunning = errors.New("server already running")
