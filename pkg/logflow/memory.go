package logflow

import "sync"

// MemorySink keeps entries in memory. It backs tests and the MCP status tool.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// Write implements Sink.
func (m *MemorySink) Write(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Close implements Sink.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Entries returns a copy of everything written so far.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Levels returns the level of each written entry, in order.
func (m *MemorySink) Levels() []Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Level, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Level
	}
	return out
}

// Closed reports whether Close was called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
