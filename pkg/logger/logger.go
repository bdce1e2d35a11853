// Package logger provides a structured JSON logger shared by all services.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

type Logger interface {
	Info(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Debug(message string, fields map[string]interface{})
	Fatal(message string, fields map[string]interface{})
}

// Level names match what log aggregation expects downstream.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

type jsonLogger struct {
	service string
	mu      sync.Mutex
	enc     *json.Encoder
}

// New returns a logger that writes one JSON object per line to stdout.
func New(serviceName string) Logger {
	return newJSON(serviceName, os.Stdout)
}

func newJSON(serviceName string, w io.Writer) *jsonLogger {
	return &jsonLogger{
		service: serviceName,
		enc:     json.NewEncoder(w),
	}
}

func (l *jsonLogger) write(level Level, message string, fields map[string]interface{}) {
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level
	entry["service"] = l.service
	entry["message"] = message

	l.mu.Lock()
	_ = l.enc.Encode(entry)
	l.mu.Unlock()
}

func (l *jsonLogger) Debug(message string, fields map[string]interface{}) {
	l.write(LevelDebug, message, fields)
}

func (l *jsonLogger) Info(message string, fields map[string]interface{}) {
	l.write(LevelInfo, message, fields)
}

func (l *jsonLogger) Warn(message string, fields map[string]interface{}) {
	l.write(LevelWarn, message, fields)
}

func (l *jsonLogger) Error(message string, fields map[string]interface{}) {
	l.write(LevelError, message, fields)
}

func (l *jsonLogger) Fatal(message string, fields map[string]interface{}) {
	l.write(LevelFatal, message, fields)
	os.Exit(1)
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]interface{}) {}
func (nopLogger) Info(string, map[string]interface{})  {}
func (nopLogger) Warn(string, map[string]interface{})  {}
func (nopLogger) Error(string, map[string]interface{}) {}
func (nopLogger) Fatal(string, map[string]interface{}) {}
