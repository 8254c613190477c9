package observability

import "sync"

// Entry is one message captured by a MemoryLogger.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// MemoryLogger records messages in memory. Loggers derived with With share
// the same record.
type MemoryLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	base    []Field
}

// NewMemoryLogger returns an empty MemoryLogger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (m *MemoryLogger) Debug(msg string, fields ...Field) { m.log("debug", msg, fields) }
func (m *MemoryLogger) Info(msg string, fields ...Field)  { m.log("info", msg, fields) }
func (m *MemoryLogger) Warn(msg string, fields ...Field)  { m.log("warn", msg, fields) }
func (m *MemoryLogger) Error(msg string, fields ...Field) { m.log("error", msg, fields) }

func (m *MemoryLogger) With(fields ...Field) Logger {
	base := append(append([]Field(nil), m.base...), fields...)
	return &MemoryLogger{mu: m.mu, entries: m.entries, base: base}
}

func (m *MemoryLogger) log(level, msg string, fields []Field) {
	e := Entry{Level: level, Message: msg, Fields: make(map[string]interface{}, len(m.base)+len(fields))}
	for _, f := range m.base {
		e.Fields[f.Key()] = f.Value()
	}
	for _, f := range fields {
		e.Fields[f.Key()] = f.Value()
	}
	m.mu.Lock()
	*m.entries = append(*m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy of the recorded messages.
func (m *MemoryLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), (*m.entries)...)
}

// Count returns how many messages were recorded at level.
func (m *MemoryLogger) Count(level string) int {
	n := 0
	for _, e := range m.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
