// Package logxzap implements logx.Logger on top of go.uber.org/zap.
//
// Example:
//
//	policy, err := lbp.NewPolicy(
//	    lbp.WithLocalDatacenter("dc1"),
//	    lbp.WithLogger(logxzap.DefaultLogger()),
//	)
package logxzap

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scylladb/dc-aware-lbp-golang/logx"
)

// Logger adapts a zap.Logger to logx.Logger.
type Logger struct {
	z *zap.Logger
}

// New creates a new Logger that wraps the given zap.Logger.
func New(z *zap.Logger) *Logger { return &Logger{z: z} }

// Zap returns the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

// Log writes a log entry if the level is enabled, attributes are not converted otherwise.
func (l *Logger) Log(lvl logx.Level, msg string, attrs ...logx.Attr) {
	if ce := l.z.Check(toZapLevel(lvl), msg); ce != nil {
		ce.Write(toZapFields(attrs)...)
	}
}

// Debug logs a message at the Debug level.
func (l *Logger) Debug(msg string, attrs ...logx.Attr) {
	l.Log(logx.DebugLevel, msg, attrs...)
}

// Info logs a message at the Info level.
func (l *Logger) Info(msg string, attrs ...logx.Attr) {
	l.Log(logx.InfoLevel, msg, attrs...)
}

// Warn logs a message at the Warn level.
func (l *Logger) Warn(msg string, attrs ...logx.Attr) {
	l.Log(logx.WarnLevel, msg, attrs...)
}

// Error logs a message at the Error level.
func (l *Logger) Error(msg string, attrs ...logx.Attr) {
	l.Log(logx.ErrorLevel, msg, attrs...)
}

// With implements logx.Logger.
func (l *Logger) With(attrs ...logx.Attr) logx.Logger {
	return &Logger{z: l.z.With(toZapFields(attrs)...)}
}

// Named implements logx.Logger.
func (l *Logger) Named(name string) logx.Logger {
	return &Logger{z: l.z.Named(name)}
}

// Enabled implements logx.Logger.
func (l *Logger) Enabled(lvl logx.Level) bool {
	return l.z.Core().Enabled(toZapLevel(lvl))
}

var _ logx.Logger = &Logger{}

func toZapLevel(l logx.Level) zapcore.Level {
	switch l {
	case logx.DebugLevel:
		return zapcore.DebugLevel
	case logx.InfoLevel:
		return zapcore.InfoLevel
	case logx.WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func toZapFields(attrs []logx.Attr) []zap.Field {
	if len(attrs) == 0 {
		return nil
	}
	fs := make([]zap.Field, 0, len(attrs))
	for _, a := range attrs {
		if err, ok := a.Value.(error); ok {
			fs = append(fs, zap.NamedError(a.Key, err))
			continue
		}
		fs = append(fs, zap.Any(a.Key, a.Value))
	}
	return fs
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewConsole creates a Logger writing human readable lines to w at the given level and above.
func NewConsole(w io.Writer, lvl logx.Level) logx.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(w), toZapLevel(lvl))
	return New(zap.New(core, zap.AddCaller()))
}

// NewProduction creates a Logger writing JSON lines to w at the given level and above.
func NewProduction(w io.Writer, lvl logx.Level) logx.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), toZapLevel(lvl))
	return New(zap.New(core))
}

// DefaultLogger creates a console Logger writing to standard output at the Info level.
func DefaultLogger() logx.Logger {
	return NewConsole(os.Stdout, logx.InfoLevel)
}
