// Package logger provides leveled logging for the pipeline. It wraps the
// standard log package with level-based filtering so noisy per-record
// diagnostics can be silenced in production.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level orders log severities from most to least verbose.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// parseLevel maps a config string to a Level, defaulting to info.
func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *Logger

// enabled reports whether a message at level msg passes the configured floor.
func (l Level) enabled(msg Level) bool { return l <= msg }

// Init sets up the default logger. Format "text" adds the caller's file and
// line to each entry.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  parseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	if defaultLogger != nil {
		defaultLogger.logger.SetOutput(w)
	}
}

func emit(msg Level, tag, format string, args []interface{}) {
	if defaultLogger == nil || !defaultLogger.level.enabled(msg) {
		return
	}
	// Depth 3: emit <- Debug/Info/Warn/Error <- caller.
	_ = defaultLogger.logger.Output(3, fmt.Sprintf(tag+format, args...))
}

// Debug logs per-record diagnostics, usually disabled outside development.
func Debug(format string, args ...interface{}) {
	emit(DebugLevel, "[DEBUG] ", format, args)
}

// Info logs normal pipeline progress.
func Info(format string, args ...interface{}) {
	emit(InfoLevel, "[INFO] ", format, args)
}

// Warn logs recoverable problems, such as a dropped record or a retried call.
func Warn(format string, args ...interface{}) {
	emit(WarnLevel, "[WARN] ", format, args)
}

// Error logs failures that end a stage or the run.
func Error(format string, args ...interface{}) {
	emit(ErrorLevel, "[ERROR] ", format, args)
}

// Fatal logs the message and exits. It works even before Init.
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(2, msg)
	} else {
		log.Print(msg)
	}
	os.Exit(1)
}
