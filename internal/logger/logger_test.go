package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandlerColorsLevelTag(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cases := map[slog.Level]string{
		slog.LevelDebug: ansiCyan,
		slog.LevelInfo:  ansiGreen,
		slog.LevelWarn:  ansiYellow,
		slog.LevelError: ansiRed,
	}
	for level, color := range cases {
		buf.Reset()
		log.Log(t.Context(), level, "ping")
		out := buf.String()
		want := color + level.String() + ansiReset
		if !strings.Contains(out, want) {
			t.Fatalf("%v line missing colored tag %q: %q", level, want, out)
		}
		if !strings.Contains(out, "ping") {
			t.Fatalf("message lost: %q", out)
		}
	}
}

func TestFileOutputHasNoEscapeSequences(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "craftd.log")
	c := (Config{File: path}).Setup()
	slog.Warn("plain please")
	_ = c.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(b, []byte("\x1b[")) {
		t.Fatalf("escape sequence in file output: %q", string(b))
	}
}

func TestSetupStderrReturnsNilCloser(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if c := (Config{Level: "debug"}).Setup(); c != nil {
		t.Fatal("stderr logging must not return a closer")
	}
}

func TestSetupFileWritesAndRotatesWithDefaults(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "craftd.log")
	c := (Config{Level: "info", File: path}).Setup()
	if c == nil {
		t.Fatal("file logging must return a closer")
	}
	w, ok := c.(*lj.Logger)
	if !ok {
		t.Fatalf("closer is not lumberjack.Logger: %T", c)
	}
	if w.MaxSize != DefaultMaxSizeMB || w.MaxBackups != DefaultMaxBackups || w.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", w.MaxSize, w.MaxBackups, w.MaxAge)
	}

	slog.Info("hello from test", "k", "v")
	_ = c.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "hello from test") {
		t.Fatalf("log line missing from file: %q", string(b))
	}
}

func TestSetupFileOverrides(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "craftd.log")
	c := (Config{File: path, MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}).Setup()
	w := c.(*lj.Logger)
	if w.MaxSize != 1 || w.MaxBackups != 9 || w.MaxAge != 11 || !w.Compress {
		t.Fatalf("overrides not applied: size=%d backups=%d age=%d compress=%t", w.MaxSize, w.MaxBackups, w.MaxAge, w.Compress)
	}
	_ = c.Close()
}
