// Package logger wraps zerolog with component-tagged events.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger tags every event with the pipeline stage that emitted it.
type Logger struct {
	logger zerolog.Logger
}

// New writes JSON events at the given level to w.
func New(w io.Writer, level zerolog.Level) *Logger {
	l := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &Logger{logger: l}
}

// NewConsole writes human-readable events to stderr.
func NewConsole(level zerolog.Level) *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr}, level)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) Debug(component, message string, fields map[string]interface{}) {
	l.event(l.logger.Debug(), component, fields).Msg(message)
}

func (l *Logger) Info(component, message string, fields map[string]interface{}) {
	l.event(l.logger.Info(), component, fields).Msg(message)
}

func (l *Logger) Warning(component, message string, fields map[string]interface{}) {
	l.event(l.logger.Warn(), component, fields).Msg(message)
}

func (l *Logger) Error(component string, err error, fields map[string]interface{}) {
	l.event(l.logger.Error().Err(err), component, fields).Msg("operation failed")
}

func (l *Logger) event(e *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
