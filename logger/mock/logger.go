package mocklogger

import (
	"sync"

	"github.com/datateam2/eventstream/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
}

// MockLogger captures log entries for assertions in tests.
// Safe for concurrent use.
type MockLogger struct {
	mu      sync.Mutex
	entries *[]LogEntry
	args    []any
}

func New() *MockLogger {
	entries := make([]LogEntry, 0)
	return &MockLogger{entries: &entries}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make([]any, 0, len(m.args)+len(kv))
	merged = append(merged, m.args...)
	merged = append(merged, kv...)

	*m.entries = append(*m.entries, LogEntry{
		Level:   level,
		Message: msg,
		KV:      merged,
	})
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &MockLogger{
		entries: m.entries,
		args:    append(append([]any{}, m.args...), kv...),
	}
}

func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry{}, *m.entries...)
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}
