package logger

import (
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}
}

func TestWriteAndTail(t *testing.T) {
	dir := t.TempDir()
	m, err := New(Config{Dir: dir, Level: slog.LevelInfo})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	log := m.NewLogger()
	log.Info("first entry")
	log.Info("second entry")

	lines, err := TailFile(m.CurrentLogFile(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("tail returned %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "second entry") {
		t.Errorf("last line = %q", lines[1])
	}

	files, err := ListLogFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("ListLogFiles returned %d files", len(files))
	}
}

func TestListLogFilesMissingDir(t *testing.T) {
	files, err := ListLogFiles("/nonexistent/tagclaw-logs")
	if err != nil || files != nil {
		t.Errorf("ListLogFiles on missing dir = (%v, %v)", files, err)
	}
}
