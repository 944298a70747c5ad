package logging

import (
	"log"
	"os"
	"strings"
	"sync"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	logLevel      int = Warning
	logLevelMutex sync.RWMutex
)

func init() {
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
}

// ParseLevel maps a LOG_LEVEL value to a level. Unknown names fall back to Warning.
func ParseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	default:
		return Warning
	}
}

func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	logLevel = level
}

func LogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return logLevel
}

func logf(level int, tag, format string, v ...interface{}) {
	if LogLevel() <= level {
		log.Printf(tag+" "+format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	logf(Debug, "[DEBUG]", format, v...)
}

func Infof(format string, v ...interface{}) {
	logf(Info, "[INFO]", format, v...)
}

func Warningf(format string, v ...interface{}) {
	logf(Warning, "[WARN]", format, v...)
}

func Errorf(format string, v ...interface{}) {
	logf(Error, "[ERROR]", format, v...)
}

func Criticalf(format string, v ...interface{}) {
	logf(Critical, "[CRITICAL]", format, v...)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
