package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Writer formats lines at or above its level onto an io.Writer. Safe for
// concurrent use; each line is written with a single Write call.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	now   func() time.Time
}

// New returns a Writer logging to out
func New(out io.Writer, level Level) *Writer {
	return &Writer{out: out, level: level, now: time.Now}
}

// Stdout returns a Writer logging to standard output
func Stdout(level Level) *Writer {
	return New(os.Stdout, level)
}

// SetLevel changes the threshold
func (w *Writer) SetLevel(level Level) {
	w.mu.Lock()
	w.level = level
	w.mu.Unlock()
}

// Level returns the threshold
func (w *Writer) Level() Level {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level
}

func (w *Writer) Debugf(format string, a ...interface{}) { w.logf(LevelDebug, format, a...) }
func (w *Writer) Infof(format string, a ...interface{})  { w.logf(LevelInfo, format, a...) }
func (w *Writer) Errorf(format string, a ...interface{}) { w.logf(LevelError, format, a...) }

func (w *Writer) logf(level Level, format string, a ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if level < w.level {
		return
	}
	line := fmt.Sprintf("%s %-5s %s\n", w.now().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(format, a...))
	io.WriteString(w.out, line)
}
