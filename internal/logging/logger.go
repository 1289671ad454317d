package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/loggo"
)

// RootModule is the loggo module every cloudrunops logger hangs off.
const RootModule = "cloudrunops"

// Logger provides leveled logging with redaction support.
// It keeps a small printf-style API on top of a loggo module logger so that
// each component logs under its own module name.
type Logger struct {
	ctx    *loggo.Context
	logger loggo.Logger
}

// New creates a logger that writes to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger that renders entries to w
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return NewWithLoggoWriter(loggo.NewSimpleWriter(w, formatter(noColor)), debug)
}

// NewWithLoggoWriter creates a logger on a private loggo context that sends
// every entry to writer. Tests pass a *loggo.TestWriter here.
func NewWithLoggoWriter(writer loggo.Writer, debug bool) *Logger {
	level := loggo.INFO
	if debug {
		level = loggo.DEBUG
	}
	ctx := loggo.NewContext(level)
	_ = ctx.AddWriter("default", writer)
	return &Logger{
		ctx:    ctx,
		logger: ctx.GetLogger(RootModule),
	}
}

// Named returns a logger for a sub-module, e.g. Named("credentials") logs
// under "cloudrunops.credentials". Writers and levels are shared.
func (l *Logger) Named(module string) *Logger {
	return &Logger{
		ctx:    l.ctx,
		logger: l.ctx.GetLogger(RootModule + "." + module),
	}
}

// Module returns the loggo module name of this logger
func (l *Logger) Module() string {
	return l.logger.Name()
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logger.Warningf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// IsDebug reports whether debug entries are emitted
func (l *Logger) IsDebug() bool {
	return l.logger.IsDebugEnabled()
}

func formatter(noColor bool) func(entry loggo.Entry) string {
	return func(entry loggo.Entry) string {
		prefix := levelPrefix(entry.Level, noColor)
		if entry.Module != "" && entry.Module != RootModule {
			return fmt.Sprintf("%s [%s] %s", prefix, strings.TrimPrefix(entry.Module, RootModule+"."), entry.Message)
		}
		return fmt.Sprintf("%s %s", prefix, entry.Message)
	}
}

func levelPrefix(level loggo.Level, noColor bool) string {
	switch {
	case level >= loggo.ERROR:
		if noColor {
			return "✗"
		}
		return "\033[31m✗\033[0m"
	case level == loggo.WARNING:
		if noColor {
			return "⚠"
		}
		return "\033[33m⚠\033[0m"
	case level <= loggo.DEBUG:
		if noColor {
			return "[DEBUG]"
		}
		return "\033[36m[DEBUG]\033[0m"
	default:
		if noColor {
			return "✓"
		}
		return "\033[32m✓\033[0m"
	}
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
