package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeN(t *testing.T, l *LogFile, start, count, width int) {
	t.Helper()
	for i := start; i < start+count; i++ {
		line := fmt.Sprintf("line-%06d %s", i, strings.Repeat("x", width))
		if err := l.WriteLine(line); err != nil {
			t.Fatalf("write line %d: %v", i, err)
		}
	}
}

func archiveCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if isArchiveName(e.Name()) {
			n++
		}
	}
	return n
}

func TestRotationPreservesAllLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	l, err := Open(path, Options{RotateBytes: 4096, RetainCount: 50})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	total := 200
	writeN(t, l, 0, total, 80)
	_ = l.Close()

	seen := make(map[string]int)
	for _, line := range readPlainLines(path) {
		seen[line]++
	}
	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("no archive produced: %v", err)
	}
	for _, e := range entries {
		for _, line := range readArchiveLines(filepath.Join(dir, "archive", e.Name())) {
			seen[line]++
		}
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct lines across active+archives, got %d", total, len(seen))
	}
	for line, n := range seen {
		if n != 1 {
			t.Fatalf("line duplicated %d times: %q", n, line)
		}
	}
}

func TestRetentionByCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	l, err := Open(path, Options{RotateBytes: 512, RetainCount: 3, RetainDays: 365})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// enough writes for well over 3 rotations
	writeN(t, l, 0, 300, 64)
	_ = l.Close()
	if got := archiveCount(t, dir); got != 3 {
		t.Fatalf("expected exactly 3 archives after retention, got %d", got)
	}
}

func TestRetentionByAge(t *testing.T) {
	dir := t.TempDir()
	arch := filepath.Join(dir, "archive")
	if err := os.MkdirAll(arch, 0o750); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(arch, "20200101-000000.log.gz")
	recent := filepath.Join(arch, "20990101-000000.log.gz")
	for _, p := range []string{old, recent} {
		if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	Prune(arch, Options{RetainCount: 10, RetainDays: 30})
	if exists(old) {
		t.Fatalf("expected age rule to delete %s", old)
	}
	if !exists(recent) {
		t.Fatalf("expected recent archive to survive")
	}
}

func TestTailSpansRotationBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	// ~1.2MB of 600-byte lines against a 1MiB threshold: exactly one rotation
	l, err := Open(path, Options{RotateBytes: 1 << 20, RetainCount: 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	writeN(t, l, 0, 2000, 588)
	_ = l.Close()

	if got := archiveCount(t, dir); got != 1 {
		t.Fatalf("expected exactly one rotation, got %d archives", got)
	}
	tail := Tail(path, 50)
	if len(tail) != 50 {
		t.Fatalf("expected 50 tail lines, got %d", len(tail))
	}
	for i, line := range tail {
		want := fmt.Sprintf("line-%06d", 2000-50+i)
		if !strings.HasPrefix(line, want) {
			t.Fatalf("tail[%d] = %q, want prefix %q", i, line, want)
		}
	}
}

func TestTailUsesNewestArchiveWhenActiveShort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	l, err := Open(path, Options{RotateBytes: 4096, RetainCount: 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	writeN(t, l, 0, 60, 64)
	_ = l.Close()

	// active file holds only the post-rotation remainder; tail must reach back
	tail := Tail(path, 40)
	if len(tail) != 40 {
		t.Fatalf("expected 40 lines, got %d", len(tail))
	}
	for i := 1; i < len(tail); i++ {
		if tail[i-1] >= tail[i] {
			t.Fatalf("tail out of order at %d: %q >= %q", i, tail[i-1], tail[i])
		}
	}
}

func TestTailMissingFilesReturnsEmpty(t *testing.T) {
	if got := Tail(filepath.Join(t.TempDir(), "nope", "console.log"), 10); len(got) != 0 {
		t.Fatalf("expected empty tail for missing file, got %v", got)
	}
}

func TestPreemptiveRotationAtOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("y", 2048)+"\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	l, err := Open(path, Options{RotateBytes: 1024})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = l.Close() }()
	if l.Size() != 0 {
		t.Fatalf("expected fresh active file after oversized open, size=%d", l.Size())
	}
	if got := archiveCount(t, dir); got != 1 {
		t.Fatalf("expected oversized file archived at open, got %d archives", got)
	}
}
