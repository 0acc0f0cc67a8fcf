package logger

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// Buffer is a bounded ring of recent log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
}

var (
	globalBuffer *Buffer
	bufferOnce   sync.Once
)

// GetBuffer returns the process-wide log buffer.
func GetBuffer() *Buffer {
	bufferOnce.Do(func() {
		globalBuffer = NewBuffer(2000)
	})
	return globalBuffer
}

// NewBuffer creates a buffer holding up to size entries.
func NewBuffer(size int) *Buffer {
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add stores an entry, evicting the oldest once full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = e
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Recent returns up to limit entries, newest first.
func (b *Buffer) Recent(limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		out = append(out, b.entries[idx])
	}
	return out
}

// Count returns the number of stored entries.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// captureWriter tees zerolog output into the global buffer.
type captureWriter struct {
	next io.Writer
}

func newCaptureWriter(next io.Writer) *captureWriter {
	return &captureWriter{next: next}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	n, err := w.next.Write(p)

	var raw struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(p, &raw) == nil && (raw.Message != "" || raw.Level != "") {
		GetBuffer().Add(Entry{
			Timestamp: time.Now(),
			Level:     raw.Level,
			Component: raw.Component,
			Message:   raw.Message,
		})
	}
	return n, err
}
