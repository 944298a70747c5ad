package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"chat_gateway/internal/logging"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = logging.Critical
	Error    LogLevel = logging.Error
	Warning  LogLevel = logging.Warning
	Info     LogLevel = logging.Info
	Debug    LogLevel = logging.Debug
)

// Logger writes one line per event with key=value pairs appended
type Logger struct {
	prefix        string
	logger        *log.Logger
	logLevel      LogLevel
	logLevelMutex sync.RWMutex
}

// NewLogger creates a logger writing to stdout. Without an explicit level it
// follows the process level set through the logging package.
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, prefix, logLevel...)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, prefix string, logLevel ...LogLevel) *Logger {
	level := LogLevel(logging.LogLevel())
	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	return &Logger{
		prefix:   prefix,
		logger:   log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		logLevel: level,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	l.logLevel = logLevel
}

func (l *Logger) log(level LogLevel, tag, msg string, keyvals ...interface{}) {
	l.logLevelMutex.RLock()
	enabled := l.logLevel <= level
	l.logLevelMutex.RUnlock()
	if enabled {
		l.logger.Println(formatMessage(tag, msg, keyvals...))
	}
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(Info, "INFO", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(Error, "ERROR", msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(Warning, "WARN", msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(Debug, "DEBUG", msg, keyvals...)
}

// formatMessage formats a message with key-value pairs. A trailing key
// without a value is dropped.
func formatMessage(level, msg string, keyvals ...interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	return b.String()
}
