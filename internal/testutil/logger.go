package testutil

import (
	"strings"
	"testing"

	"github.com/juju/loggo"
	"github.com/stretchr/testify/assert"

	"github.com/systmms/cloudrunops/internal/logging"
)

// TestLogger captures log entries for validation in tests.
//
// Example usage:
//
//	logger := NewTestLogger(t)
//	component := New(logger.Logger)
//	component.Run()
//	logger.AssertContains(t, "Could not load account broken")
type TestLogger struct {
	*logging.Logger
	writer *loggo.TestWriter
}

// NewTestLogger creates a TestLogger that captures info and above.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug creates a TestLogger that also captures debug
// entries when debug is true.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	writer := &loggo.TestWriter{}
	return &TestLogger{
		Logger: logging.NewWithLoggoWriter(writer, debug),
		writer: writer,
	}
}

// Entries returns every captured entry at level or above.
func (l *TestLogger) Entries(level loggo.Level) []loggo.Entry {
	var entries []loggo.Entry
	for _, entry := range l.writer.Log() {
		if entry.Level >= level {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Messages returns the messages captured at exactly level.
func (l *TestLogger) Messages(level loggo.Level) []string {
	var messages []string
	for _, entry := range l.writer.Log() {
		if entry.Level == level {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

// GetOutput returns every captured message, one per line.
func (l *TestLogger) GetOutput() string {
	var b strings.Builder
	for _, entry := range l.writer.Log() {
		b.WriteString(entry.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

// Clear drops the captured entries.
func (l *TestLogger) Clear() {
	l.writer.Clear()
}

// AssertContains asserts that some captured message contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that no captured message contains substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertLogCount asserts how many entries were captured at exactly level.
func (l *TestLogger) AssertLogCount(t *testing.T, level loggo.Level, count int) {
	t.Helper()
	assert.Len(t, l.Messages(level), count, "Expected %d %s log messages", count, level)
}
