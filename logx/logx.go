// Package logx is the logging facade used by the load balancing policy.
//
// Policy code logs through the Logger interface only, so that drivers can plug
// in whatever backend they already use. Attributes are plain key/value pairs
// created with A.
//
// The package provides:
//   - Level: logging severity levels, parsable from configuration.
//   - Attr: a key/value pair for structured log fields.
//   - Noop: a Logger that discards everything.
package logx

import (
	"fmt"
	"strings"
)

// Level represents the severity of a log message.
type Level int

const (
	// DebugLevel is used for per-event topology messages.
	DebugLevel Level = iota
	// InfoLevel is used for lifecycle messages.
	InfoLevel
	// WarnLevel is used for unexpected situations that are recoverable.
	WarnLevel
	// ErrorLevel is used for problems that require attention.
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Attr represents a key/value pair used for structured logging.
type Attr struct {
	Key   string
	Value any
}

// A creates an Attr from a key and value.
func A(k string, v any) Attr { return Attr{Key: k, Value: v} }

// Error wraps an error with Attr under the "error" key.
func Error(err error) Attr {
	return NamedError("error", err)
}

// NamedError wraps an error with Attr under the provided key.
func NamedError(key string, err error) Attr {
	return Attr{Key: key, Value: err}
}

// Logger describes a leveled, structured logger.
type Logger interface {
	// Log logs a message at the given severity level with optional structured attributes.
	Log(lvl Level, msg string, attrs ...Attr)

	Debug(msg string, attrs ...Attr)
	Info(msg string, attrs ...Attr)
	Warn(msg string, attrs ...Attr)
	Error(msg string, attrs ...Attr)

	// With returns a Logger that includes the given attributes with all future log messages.
	With(attrs ...Attr) Logger
	// Named returns a Logger with an additional name segment.
	Named(name string) Logger

	// Enabled reports whether logging is enabled for the given level.
	Enabled(lvl Level) bool
}

// Noop is a Logger that discards all log messages.
type Noop struct{}

func (Noop) Log(Level, string, ...Attr) {}
func (Noop) Debug(string, ...Attr)      {}
func (Noop) Info(string, ...Attr)       {}
func (Noop) Warn(string, ...Attr)       {}
func (Noop) Error(string, ...Attr)      {}
func (n Noop) With(...Attr) Logger      { return n }
func (n Noop) Named(string) Logger      { return n }
func (Noop) Enabled(Level) bool         { return false }

var _ Logger = Noop{}
