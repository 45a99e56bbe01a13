// Package logger provides leveled logging for the whole process.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[string]Level{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
}

var (
	minLevel = InfoLevel
	backend  = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init configures the process logger. Unknown levels fall back to info;
// the "text" format additionally records call sites.
func Init(level string, format string) {
	if l, ok := levelNames[strings.ToLower(level)]; ok {
		minLevel = l
	} else {
		minLevel = InfoLevel
	}

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	backend = log.New(os.Stderr, "", flags)
}

func emit(l Level, tag, format string, args ...interface{}) {
	if l < minLevel {
		return
	}
	_ = backend.Output(3, fmt.Sprintf(tag+" "+format, args...))
}

func Debug(format string, args ...interface{}) {
	emit(DebugLevel, "[DEBUG]", format, args...)
}

func Info(format string, args ...interface{}) {
	emit(InfoLevel, "[INFO]", format, args...)
}

func Warn(format string, args ...interface{}) {
	emit(WarnLevel, "[WARN]", format, args...)
}

func Error(format string, args ...interface{}) {
	emit(ErrorLevel, "[ERROR]", format, args...)
}

func Fatal(format string, args ...interface{}) {
	emit(ErrorLevel, "[FATAL]", format, args...)
	os.Exit(1)
}
