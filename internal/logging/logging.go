package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// StdoutLogger is the structured logger used by the service.
// It implements Logger and prints JSON lines to stdout.
type StdoutLogger struct {
	component string
	root      *slog.Logger
	fields    []any
	base      *slog.Logger
}

// NewStdoutLogger creates a StdoutLogger at info level. component is optional
// and is emitted on every line.
func NewStdoutLogger(component string) *StdoutLogger {
	return NewLogger(os.Stdout, component, slog.LevelInfo)
}

// NewLogger creates a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, component string, level slog.Level) *StdoutLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return newStdoutLogger(slog.New(h), component, nil)
}

func newStdoutLogger(root *slog.Logger, component string, fields []any) *StdoutLogger {
	base := root
	if component != "" {
		base = base.With("component", component)
	}
	if len(fields) > 0 {
		base = base.With(fields...)
	}
	return &StdoutLogger{component: component, root: root, fields: fields, base: base}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.base.Debug(msg, attrs(fields)...)
}

func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.base.Info(msg, attrs(fields)...)
}

func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.base.Warn(msg, attrs(fields)...)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.base.Error(msg, attrs(fields)...)
}

// With returns a child logger. A "component" field replaces the component
// name instead of stacking a second key.
func (s *StdoutLogger) With(fields ...Field) Logger {
	component := s.component
	extra := append([]any(nil), s.fields...)
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				component = str
				continue
			}
		}
		extra = append(extra, f.Key, f.Value)
	}
	return newStdoutLogger(s.root, component, extra)
}
