// Package logger is the levelled logging used across slidealign. Lines are
// written as "<time> <LEVEL> <message>"; pair identifiers are part of the
// message.
package logger

import (
	"fmt"
	"strings"
)

// Level orders log lines by severity
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("Level(%d)", int8(l))
	}
	return levelNames[l]
}

// ParseLevel accepts debug, info or error in any case. Anything else is an
// error and yields LevelInfo.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is what pipeline components log through
type Logger interface {
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// Discard drops every line
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
