package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	useColor  bool
	colorOnce sync.Once
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
	})
}

// parseLevel resolves the DEBUG and LOG_LEVEL values into a level.
// DEBUG wins when it holds a truthy value.
func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
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

func colorEnabled() bool {
	colorOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			return
		}
		useColor = term.IsTerminal(int(os.Stderr.Fd()))
	})
	return useColor
}

// prefix returns the level tag, colored for terminals.
func prefix(level LogLevel, color bool) string {
	var tag, c string
	switch level {
	case LevelDebug:
		tag, c = "[DEBUG] ", colorGray
	case LevelInfo:
		tag, c = "[INFO] ", ""
	case LevelWarn:
		tag, c = "[WARN] ", colorYellow
	default:
		tag, c = "[ERROR] ", colorRed
	}
	if !color || c == "" {
		return tag
	}
	return c + tag + colorReset
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func output(level LogLevel, format string, args ...interface{}) {
	if GetLevel() > level {
		return
	}
	log.Printf(prefix(level, colorEnabled())+format, args...)
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	output(LevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	output(LevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	output(LevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	output(LevelError, format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf(prefix(LevelError, colorEnabled())+"[FATAL] "+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Scoped prefixes every message with a fixed tag, typically a request ID.
type Scoped struct {
	tag string
}

// ForRequest returns a Scoped logger tagged with the first 8 characters of id.
func ForRequest(id string) Scoped {
	if len(id) > 8 {
		id = id[:8]
	}
	return Scoped{tag: "[req=" + id + "] "}
}

// Tag returns the prefix written before each message.
func (s Scoped) Tag() string {
	return s.tag
}

// Debug logs a scoped debug message
func (s Scoped) Debug(format string, args ...interface{}) {
	output(LevelDebug, s.tag+format, args...)
}

// Info logs a scoped info message
func (s Scoped) Info(format string, args ...interface{}) {
	output(LevelInfo, s.tag+format, args...)
}

// Warn logs a scoped warning message
func (s Scoped) Warn(format string, args ...interface{}) {
	output(LevelWarn, s.tag+format, args...)
}

// Error logs a scoped error message
func (s Scoped) Error(format string, args ...interface{}) {
	output(LevelError, s.tag+format, args...)
}
