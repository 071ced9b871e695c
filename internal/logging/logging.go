// Package logging provides the leveled logger used across every core
// component, modeled on the mage image-resize service's logger package.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32
	colorEnabled atomic.Bool
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	colorEnabled.Store(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

func SetOutput(w io.Writer) { log.SetOutput(w) }

func SetFlags(flags int) { log.SetFlags(flags) }

// InitFromEnv reads NIVE_LOG_LEVEL and applies it.
func InitFromEnv() {
	SetLevelFromString(os.Getenv("NIVE_LOG_LEVEL"))
}

func SetLevelFromString(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		currentLevel.Store(int32(LevelDebug))
	case "warn", "warning":
		currentLevel.Store(int32(LevelWarn))
	case "error":
		currentLevel.Store(int32(LevelError))
	default:
		currentLevel.Store(int32(LevelInfo))
	}
}

func SetColor(enabled bool) { colorEnabled.Store(enabled) }

func EnabledDebug() bool { return enabled(LevelDebug) }

// Component returns a logger scoped to a bracketed component tag, matching
// the teacher's "[FileLoader] ..." convention.
func Component(name string) *Logger {
	return &Logger{tag: name}
}

type Logger struct{ tag string }

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, "ERROR", format, args...) }

func (l *Logger) log(level Level, tagName, format string, args ...any) {
	if !enabled(level) {
		return
	}
	body := fmt.Sprintf(format, args...)
	if colorEnabled.Load() {
		_ = log.Output(3, fmt.Sprintf("%s[%s]\x1b[0m [%s] %s", colorFor(level), tagName, l.tag, body))
		return
	}
	_ = log.Output(3, fmt.Sprintf("[%s] [%s] %s", tagName, l.tag, body))
}

func colorFor(level Level) string {
	switch level {
	case LevelDebug:
		return "\x1b[90m"
	case LevelWarn:
		return "\x1b[33m"
	case LevelError:
		return "\x1b[31m"
	default:
		return "\x1b[36m"
	}
}

func enabled(level Level) bool { return level >= Level(currentLevel.Load()) }
