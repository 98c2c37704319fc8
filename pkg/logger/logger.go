package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu    sync.Mutex
	level = LevelInfo
	out   = os.Stderr
)

// SetLevel adjusts the minimum level emitted. Safe for concurrent use.
func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

// ParseLevel maps a config string to a Level, defaulting to info so an
// unrecognized value never silences warnings.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func emit(l Level, tag, msg string) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	fmt.Fprintf(out, "%s %-5s %s\n", time.Now().Format("2006-01-02 15:04:05"), tag, msg)
}

func Debug(msg string) { emit(LevelDebug, "DEBUG", msg) }
func Info(msg string)  { emit(LevelInfo, "INFO", msg) }
func Warn(msg string)  { emit(LevelWarn, "WARN", msg) }
func Error(msg string) { emit(LevelError, "ERROR", msg) }
