package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one captured line
type Entry struct {
	Level   Level
	Message string
}

// Memory captures every line, whatever its level, for tests to inspect
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Debugf(format string, a ...interface{}) { m.add(LevelDebug, format, a...) }
func (m *Memory) Infof(format string, a ...interface{})  { m.add(LevelInfo, format, a...) }
func (m *Memory) Errorf(format string, a ...interface{}) { m.add(LevelError, format, a...) }

func (m *Memory) add(level Level, format string, a ...interface{}) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: level, Message: fmt.Sprintf(format, a...)})
	m.mu.Unlock()
}

// Entries returns a copy of everything captured so far
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Contains reports whether any message contains substr
func (m *Memory) Contains(substr string) bool {
	for _, e := range m.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
