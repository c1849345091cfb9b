package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"drive-go/internal/drive"
)

// MemorySink keeps exported content in memory. Useful for testing.
// This implementation is safe for concurrent use.
type MemorySink struct {
	name    string
	content map[string][]byte // key -> content
	mu      sync.RWMutex
}

// NewMemorySink creates a new in-memory sink with the given name.
func NewMemorySink(name string) *MemorySink {
	return &MemorySink{
		name:    name,
		content: make(map[string][]byte),
	}
}

func (m *MemorySink) Name() string { return m.name }

// Put stores content under key, replacing any previous export.
func (m *MemorySink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[key] = data
	return "mem://" + m.name + "/" + key, nil
}

// Get writes the content stored under key to w.
func (m *MemorySink) Get(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[key]
	if !ok {
		return fmt.Errorf("content not found: %s", key)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Len returns the number of stored exports.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// ValidateSetup always succeeds for the in-memory sink.
func (m *MemorySink) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemorySink implements drive.ExportSink interface
var _ drive.ExportSink = (*MemorySink)(nil)
