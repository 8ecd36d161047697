package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSessionFileName(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	got := SessionFile("logs", at)
	want := filepath.Join("logs", "2025-03-04-05-06-07.log")
	if got != want {
		t.Fatalf("SessionFile = %q, want %q", got, want)
	}
}

func TestServiceWritesSessionFile(t *testing.T) {
	dir := t.TempDir()
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Dir: dir}})
	t.Cleanup(func() { _ = svc.Close() })

	path := svc.FilePath()
	if path == "" || filepath.Dir(path) != dir {
		t.Fatalf("unexpected log file path %q", path)
	}

	log.With(String("comp", "test")).Info("hello", Int("n", 1))

	// Re-applying the same dir keeps the session file.
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Dir: dir}})
	if svc.FilePath() != path {
		t.Fatalf("session file changed after re-apply: %q -> %q", path, svc.FilePath())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"message":"hello"`) || !strings.Contains(string(b), `"comp":"test"`) {
		t.Fatalf("log line missing fields: %s", b)
	}
}

func TestLoggerLevelsAndZeroValue(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	log.Warn("kept", Err(nil))
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Error("must not panic")
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "debug", "WARNING", "error"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("ValidLevel(verbose) = true")
	}
}
