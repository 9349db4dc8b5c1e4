package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/craftd/internal/console"
	"github.com/loykin/craftd/internal/env"
	"github.com/loykin/craftd/internal/logfile"
	"github.com/loykin/craftd/internal/metrics"
	"github.com/loykin/craftd/internal/status"
	"github.com/loykin/craftd/internal/tracker"
)

const (
	defaultStopCommand = "stop"
	defaultStopGrace   = 10 * time.Second
)

// EventSink receives the supervisor's outbound events. The broadcaster
// implements it in production; tests substitute a recording sink.
type EventSink interface {
	NotifyStatusChange(serverID int64)
	EmitLogBatch(serverID int64, lines []string)
}

// Options tunes the per-server console pipeline.
type Options struct {
	Rotation      logfile.Options
	BatchInterval time.Duration
	BufferLines   int
	StopGrace     time.Duration
	// GlobalEnv is applied to every spawned server on top of the daemon's
	// environment; per-server Env entries override it.
	GlobalEnv map[string]string
}

// handle is the live per-server state: exactly one exists per running server.
type handle struct {
	server    Server
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	startedAt time.Time

	mu         sync.Mutex
	innerPID   int
	markerExit *int

	readerDone chan struct{} // closed when both output streams are drained
	done       chan struct{} // closed by the exit-watcher after teardown
}

func (h *handle) setInnerPID(pid int) {
	h.mu.Lock()
	h.innerPID = pid
	h.mu.Unlock()
}

func (h *handle) innerPIDValue() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.innerPID
}

func (h *handle) setMarkerExit(code int) {
	h.mu.Lock()
	h.markerExit = &code
	h.mu.Unlock()
}

func (h *handle) markerExitCode() *int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markerExit
}

func (h *handle) writeStdin(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return os.ErrClosed
	}
	_, err := io.WriteString(h.stdin, text)
	return err
}

// Supervisor owns at most one child process per server id, streams and cleans
// its output, and tears everything down when the exit is observed. The handle
// table is the ProcessRegistry: insertion happens only in Start, removal only
// in the exit-watcher, and check-then-insert is atomic per id.
type Supervisor struct {
	mu      sync.Mutex
	handles map[int64]*handle

	tracker *tracker.Tracker
	sink    EventSink
	opt     Options
	env     *env.Env

	recordStart func(server Server, pid int, at time.Time)
	recordStop  func(server Server, pid int, startedAt, stoppedAt time.Time, exitCode *int)
}

func New(tr *tracker.Tracker, sink EventSink, opt Options) *Supervisor {
	if opt.StopGrace <= 0 {
		opt.StopGrace = defaultStopGrace
	}
	e := env.New()
	for k, v := range opt.GlobalEnv {
		e.Set(k, v)
	}
	return &Supervisor{
		handles: make(map[int64]*handle),
		tracker: tr,
		sink:    sink,
		opt:     opt,
		env:     e,
	}
}

// SetRecorders installs optional persistence callbacks invoked on observed
// starts and stops.
func (s *Supervisor) SetRecorders(
	start func(server Server, pid int, at time.Time),
	stop func(server Server, pid int, startedAt, stoppedAt time.Time, exitCode *int),
) {
	s.mu.Lock()
	s.recordStart = start
	s.recordStop = stop
	s.mu.Unlock()
}

func (s *Supervisor) handle(id int64) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

func (s *Supervisor) remove(id int64) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// Alive reports whether a live handle exists for the server id.
func (s *Supervisor) Alive(id int64) bool {
	return s.handle(id) != nil
}

// InnerPID returns the last learned inner-runtime PID, or 0.
func (s *Supervisor) InnerPID(id int64) int {
	if h := s.handle(id); h != nil {
		return h.innerPIDValue()
	}
	return 0
}

// Status resolves the server's externally visible state and last exit code.
func (s *Supervisor) Status(server Server) (status.Code, *int) {
	ov, _ := s.tracker.Override(server.ID)
	exit := s.tracker.LastExit(server.ID)
	code := status.Resolve(status.Inputs{
		FreshInstall: status.FreshInstall(server.Dir),
		Override:     ov,
		HandleAlive:  s.Alive(server.ID),
		ExitCode:     exit,
	})
	return code, exit
}

// Start spawns the supervisor child for the server. It fails with
// ErrAlreadyRunning when a live handle exists and never leaves a partial
// handle registered on spawn failure.
func (s *Supervisor) Start(server Server) (int, error) {
	s.mu.Lock()
	if _, ok := s.handles[server.ID]; ok {
		s.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	h := &handle{
		server:     server,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.handles[server.ID] = h
	s.mu.Unlock()

	pid, err := s.spawn(h)
	if err != nil {
		s.remove(server.ID)
		return 0, err
	}
	return pid, nil
}

func (s *Supervisor) spawn(h *handle) (int, error) {
	server := h.server
	if st, err := os.Stat(server.Dir); err != nil || !st.IsDir() {
		return 0, fmt.Errorf("working directory %s: %w", server.Dir, errOrNotDir(err))
	}

	lf, err := logfile.Open(server.ConsoleLogPath(), rotationWithMetric(s.opt.Rotation, server.Name))
	if err != nil {
		return 0, fmt.Errorf("open console log for %s: %w", server.Name, err)
	}

	cmd := buildCommand(server.Command)
	cmd.Dir = server.Dir
	cmd.Env = s.env.Merge(server.Env)
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = lf.Close()
		return 0, fmt.Errorf("stdin pipe for %s: %w", server.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = lf.Close()
		return 0, fmt.Errorf("stdout pipe for %s: %w", server.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = lf.Close()
		return 0, fmt.Errorf("stderr pipe for %s: %w", server.Name, err)
	}

	if err := cmd.Start(); err != nil {
		_ = lf.Close()
		return 0, fmt.Errorf("spawn %s: %w", server.Name, err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = stdout
	h.stderr = stderr
	h.startedAt = time.Now()

	// Optimistic UI: pending until the companion plugin confirms readiness.
	s.tracker.Arm(server.ID)

	buf := console.NewBuffer(s.opt.BufferLines)
	batcher := console.NewBatcher(s.opt.BatchInterval, buf, func(lines []string) {
		metrics.IncLogBatch(server.Name)
		s.sink.EmitLogBatch(server.ID, lines)
	})
	go batcher.Run()
	go s.readLoop(h, lf, buf)
	go s.exitWatcher(h, lf, batcher)

	pid := cmd.Process.Pid
	slog.Info("server started", "server", server.Name, "pid", pid)
	metrics.IncStart(server.Name)
	s.mu.Lock()
	rec := s.recordStart
	s.mu.Unlock()
	if rec != nil {
		rec(server, pid, h.startedAt)
	}
	s.sink.NotifyStatusChange(server.ID)
	return pid, nil
}

func errOrNotDir(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not a directory")
}

func rotationWithMetric(opt logfile.Options, name string) logfile.Options {
	opt.OnRotate = func() { metrics.IncLogRotation(name) }
	return opt
}

// exitWatcher awaits process completion, then tears down the pipeline:
// final forced drain of buffered lines, batch emitter cancelled, handle
// unregistered, external override cleared, log file closed, status broadcast.
func (s *Supervisor) exitWatcher(h *handle, lf *logfile.LogFile, batcher *console.Batcher) {
	<-h.readerDone
	err := h.cmd.Wait()

	code := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	if mc := h.markerExitCode(); mc != nil {
		// the inner runtime's reported code is the more meaningful one
		code = *mc
	}
	id := h.server.ID
	s.tracker.SetLastExit(id, code)

	batcher.Close()
	s.remove(id)
	s.tracker.Clear(id)
	_ = lf.Close()
	close(h.done)

	slog.Info("server exited", "server", h.server.Name, "code", code)
	metrics.IncStop(h.server.Name)
	s.mu.Lock()
	rec := s.recordStop
	s.mu.Unlock()
	if rec != nil {
		pid := 0
		if h.cmd.Process != nil {
			pid = h.cmd.Process.Pid
		}
		c := code
		rec(h.server, pid, h.startedAt, time.Now(), &c)
	}
	s.sink.NotifyStatusChange(id)
}

// Stop requests a graceful shutdown by writing the server's stop command to
// the child's stdin. A server with no live handle is already stopped, and a
// closed stdin means the child is already on its way down; both are success.
func (s *Supervisor) Stop(server Server) error {
	h := s.handle(server.ID)
	if h == nil {
		return nil
	}
	cmdLine := server.StopCommand
	if cmdLine == "" {
		cmdLine = defaultStopCommand
	}
	if err := h.writeStdin(cmdLine + "\n"); err != nil {
		if isBrokenPipe(err) || errors.Is(err, os.ErrClosed) {
			slog.Warn("stdin already closed, treating as stopping", "server", server.Name)
			return nil
		}
		slog.Warn("graceful stop write failed", "server", server.Name, "error", err)
	}
	return nil
}

// Restart stops the server, waits for the exit-watcher up to the grace
// period, then starts again. It never blocks indefinitely: when the grace
// window elapses with the process still up, the start attempt proceeds (and
// reports ErrAlreadyRunning).
func (s *Supervisor) Restart(server Server) (int, error) {
	if h := s.handle(server.ID); h != nil {
		_ = s.Stop(server)
		select {
		case <-h.done:
		case <-time.After(s.opt.StopGrace):
			slog.Warn("stop grace elapsed, attempting start anyway", "server", server.Name)
		}
	}
	return s.Start(server)
}

// Kill sends a hard kill to the tracked inner-runtime PID (if known) and to
// the supervisor's process group. "Already gone" is success; only
// permission-denied is reported, since that needs operator intervention.
func (s *Supervisor) Kill(server Server) error {
	h := s.handle(server.ID)
	if h == nil {
		return nil
	}
	metrics.IncKill(server.Name)
	if pid := h.innerPIDValue(); pid > 0 {
		if err := killPID(pid); err != nil {
			return fmt.Errorf("kill inner runtime pid %d: %w", pid, err)
		}
	}
	if h.cmd != nil && h.cmd.Process != nil {
		if err := killPID(-h.cmd.Process.Pid); err != nil {
			return fmt.Errorf("kill process group %d: %w", h.cmd.Process.Pid, err)
		}
	}
	return nil
}

// SendCommand writes a console command to the child's stdin. It silently
// no-ops when the server is not running; callers needing a guarantee should
// check status first.
func (s *Supervisor) SendCommand(server Server, text string) {
	h := s.handle(server.ID)
	if h == nil {
		return
	}
	if err := h.writeStdin(text + "\n"); err != nil {
		slog.Warn("console command write failed", "server", server.Name, "error", err)
	}
}

// Tail returns up to n recent console lines, reading across the rotation
// boundary when the active file is short.
func (s *Supervisor) Tail(server Server, n int) []string {
	return logfile.Tail(server.ConsoleLogPath(), n)
}

// Done exposes the teardown signal for the server's current handle. It
// returns nil when no live handle exists.
func (s *Supervisor) Done(id int64) <-chan struct{} {
	if h := s.handle(id); h != nil {
		return h.done
	}
	return nil
}
