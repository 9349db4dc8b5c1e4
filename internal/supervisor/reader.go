package supervisor

import (
	"bufio"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/loykin/craftd/internal/console"
	"github.com/loykin/craftd/internal/logfile"
	"github.com/loykin/craftd/internal/metrics"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Markers printed by the supervisor child when the inner game-server runtime
// changes state. The inner PID is never spawned by us directly; it is learned
// from these lines.
var (
	innerPIDRe  = regexp.MustCompile(`Server is running at PID (\d+)`)
	innerExitRe = regexp.MustCompile(`Server process stopped with code (-?\d+)`)
)

// cleanLine strips ANSI escape sequences and trailing carriage returns.
func cleanLine(raw string) string {
	return strings.TrimRight(ansiRe.ReplaceAllString(raw, ""), "\r")
}

// isPromptArtifact reports whether a line is purely a console REPL prompt.
func isPromptArtifact(line string) bool {
	t := strings.TrimSpace(line)
	return t == ">" || t == ">>" || t == ">>>"
}

// readLoop merges stdout and stderr (first-available-wins), cleans each line,
// persists it, buffers it for batching and scans it for runtime markers.
// It returns when both streams are exhausted. I/O errors on the log file are
// logged and swallowed: losing audit lines is acceptable, losing the live
// stream is not.
func (s *Supervisor) readLoop(h *handle, lf *logfile.LogFile, buf *console.Buffer) {
	defer close(h.readerDone)

	lines := make(chan string, 256)
	var wg sync.WaitGroup
	for _, r := range []io.Reader{h.stdout, h.stderr} {
		if r == nil {
			continue
		}
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			sc := bufio.NewScanner(r)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				lines <- sc.Text()
			}
		}(r)
	}
	go func() {
		wg.Wait()
		close(lines)
	}()

	for raw := range lines {
		line := cleanLine(raw)
		if line == "" || isPromptArtifact(line) {
			continue
		}
		if err := lf.WriteLine(line); err != nil {
			slog.Warn("console log write failed", "server", h.server.Name, "error", err)
		}
		buf.Append(line)
		metrics.AddConsoleLines(h.server.Name, 1)
		s.scanMarkers(h, line)
	}
}

func (s *Supervisor) scanMarkers(h *handle, line string) {
	if m := innerPIDRe.FindStringSubmatch(line); m != nil {
		if pid, err := strconv.Atoi(m[1]); err == nil {
			h.setInnerPID(pid)
			slog.Debug("inner runtime pid learned", "server", h.server.Name, "pid", pid)
		}
		return
	}
	if m := innerExitRe.FindStringSubmatch(line); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			h.setMarkerExit(code)
			s.tracker.SetLastExit(h.server.ID, code)
		}
	}
}
