package logfile

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Default rotation and retention parameters
const (
	DefaultRotateBytes = 1 << 20 // 1 MiB
	DefaultRetainCount = 20
	DefaultRetainDays  = 30
)

// Options controls rotation and retention of a console log.
type Options struct {
	RotateBytes int64 `json:"rotate_bytes" mapstructure:"rotate_bytes"`
	RetainCount int   `json:"retain_count" mapstructure:"retain_count"`
	RetainDays  int   `json:"retain_days" mapstructure:"retain_days"`

	// OnRotate, when set, is invoked after each completed rotation.
	OnRotate func() `json:"-" mapstructure:"-"`
}

func (o Options) withDefaults() Options {
	if o.RotateBytes <= 0 {
		o.RotateBytes = DefaultRotateBytes
	}
	if o.RetainCount <= 0 {
		o.RetainCount = DefaultRetainCount
	}
	if o.RetainDays <= 0 {
		o.RetainDays = DefaultRetainDays
	}
	return o
}

// LogFile is an append-only console log with size-triggered rotation into
// timestamped gzip archives under <dir>/archive, pruned by count and age.
// The write path is owned by a single reader loop; the mutex exists so that
// Close and a late write cannot race during teardown.
type LogFile struct {
	mu         sync.Mutex
	path       string
	archiveDir string
	f          *os.File
	size       int64
	opt        Options
}

// Open opens (creating if needed) the active log file in append mode.
// If the file is already at or past the rotation threshold, it is rotated
// before the first write so a restarted server begins on a fresh file.
func Open(path string, opt Options) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l := &LogFile{
		path:       path,
		archiveDir: filepath.Join(filepath.Dir(path), "archive"),
		opt:        opt.withDefaults(),
	}
	if err := l.openLocked(); err != nil {
		return nil, err
	}
	if l.size >= l.opt.RotateBytes {
		l.rotateLocked()
	}
	return l, nil
}

func (l *LogFile) openLocked() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	l.f = f
	l.size = st.Size()
	return nil
}

// WriteLine appends text plus a newline, then checks rotation. The triggering
// write always completes before rotation runs, so no line straddles two files.
func (l *LogFile) WriteLine(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		if err := l.openLocked(); err != nil {
			return err
		}
	}
	n, err := l.f.WriteString(text + "\n")
	l.size += int64(n)
	if err != nil {
		return err
	}
	if l.size >= l.opt.RotateBytes {
		l.rotateLocked()
	}
	return nil
}

// rotateLocked closes the active file, moves it into the archive directory
// under a timestamped name, gzips it, reopens a fresh active file and prunes
// old archives. An active file that vanished externally is reopened silently.
func (l *LogFile) rotateLocked() {
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	if err := os.MkdirAll(l.archiveDir, 0o750); err != nil {
		slog.Warn("create archive dir failed", "dir", l.archiveDir, "error", err)
	} else {
		dst := l.archiveName(time.Now())
		switch err := os.Rename(l.path, dst); {
		case err == nil:
			if err := gzipFile(dst); err != nil {
				slog.Warn("compress archived log failed", "file", dst, "error", err)
			}
		case os.IsNotExist(err):
			// active file vanished; just reopen below
		default:
			slog.Warn("archive log failed", "file", l.path, "error", err)
		}
	}
	if err := l.openLocked(); err != nil {
		slog.Warn("reopen log file failed", "file", l.path, "error", err)
	}
	Prune(l.archiveDir, l.opt)
	if l.opt.OnRotate != nil {
		l.opt.OnRotate()
	}
}

// archiveName returns a unique archive path for ts. Rotations within the same
// second get a numeric suffix.
func (l *LogFile) archiveName(ts time.Time) string {
	base := filepath.Join(l.archiveDir, ts.Format("20060102-150405"))
	name := base + ".log"
	for i := 1; ; i++ {
		if !exists(name) && !exists(name+".gz") {
			return name
		}
		name = fmt.Sprintf("%s-%d.log", base, i)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Close closes the active handle. Subsequent writes reopen it.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Size returns the current byte size of the active file.
func (l *LogFile) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Prune deletes archives beyond count retention (newest kept by mtime) and,
// independently, any archive older than the age retention. Both rules apply.
func Prune(dir string, opt Options) {
	opt = opt.withDefaults()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type arch struct {
		path string
		mod  time.Time
	}
	var archives []arch
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, arch{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].mod.After(archives[j].mod) })
	cutoff := time.Now().AddDate(0, 0, -opt.RetainDays)
	for i, a := range archives {
		if i >= opt.RetainCount || a.mod.Before(cutoff) {
			if err := os.Remove(a.path); err != nil {
				slog.Warn("prune archive failed", "file", a.path, "error", err)
			}
		}
	}
}

func isArchiveName(name string) bool {
	return strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.gz")
}

// Tail returns up to n lines from the end of the active log at path. When the
// active file holds fewer than n lines, the single most recently modified
// archive is decompressed and its tail prepended. Missing files are not an
// error; the result is whatever is available, possibly empty.
func Tail(path string, n int) []string {
	if n <= 0 {
		return nil
	}
	lines := lastLines(readPlainLines(path), n)
	if len(lines) >= n {
		return lines
	}
	arch := newestArchive(filepath.Join(filepath.Dir(path), "archive"))
	if arch == "" {
		return lines
	}
	prev := lastLines(readArchiveLines(arch), n-len(lines))
	return append(prev, lines...)
}

func lastLines(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

func newestArchive(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best
}

func readPlainLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()
	return scanLines(f)
}

func readArchiveLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return scanLines(r)
}

func scanLines(r io.Reader) []string {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// gzipFile compresses src into src.gz and removes the uncompressed original.
func gzipFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	out, err := os.Create(src + ".gz")
	if err != nil {
		_ = in.Close()
		return err
	}
	zw := gzip.NewWriter(out)
	_, cpErr := io.Copy(zw, in)
	_ = in.Close()
	if err := zw.Close(); cpErr == nil {
		cpErr = err
	}
	if err := out.Close(); cpErr == nil {
		cpErr = err
	}
	if cpErr != nil {
		_ = os.Remove(src + ".gz")
		return cpErr
	}
	return os.Remove(src)
}
