package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, LevelInfo)
	w.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	w.Debugf("hidden %d", 1)
	w.Infof("shown %d", 2)
	w.Errorf("broken %s", "pipe")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", buf.String())
	}
	if lines[0] != "2024-03-01 12:00:00 INFO  shown 2" {
		t.Errorf("Unexpected info line %q", lines[0])
	}
	if lines[1] != "2024-03-01 12:00:00 ERROR broken pipe" {
		t.Errorf("Unexpected error line %q", lines[1])
	}

	w.SetLevel(LevelDebug)
	w.Debugf("now visible")
	if !strings.Contains(buf.String(), "DEBUG now visible") {
		t.Error("Expected debug line after lowering level")
	}
	if w.Level() != LevelDebug {
		t.Errorf("Expected debug level, got %v", w.Level())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "INFO": LevelInfo, " error ": LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if Level(7).String() != "Level(7)" {
		t.Errorf("Unexpected name for out-of-range level: %s", Level(7))
	}
}

func TestMemoryCapturesEverything(t *testing.T) {
	m := &Memory{}
	var _ Logger = m
	var _ Logger = Discard

	m.Debugf("masks %d", 2)
	m.Infof("accepted rank %d", 0)
	if !m.Contains("accepted rank 0") {
		t.Errorf("Expected captured line, got %v", m.Entries())
	}
	entries := m.Entries()
	if len(entries) != 2 || entries[0].Level != LevelDebug {
		t.Errorf("Unexpected entries %v", entries)
	}
}
