package staging

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"drive-go/internal/drive"
)

// memoryStore keeps staged content in memory. Addresses use the mem://
// scheme and are only meaningful inside the current process.
type memoryStore struct {
	mu      sync.Mutex
	content map[string][]byte
}

var _ stagingStore = (*memoryStore)(nil)

func (m *memoryStore) StoreContent(id, name string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading content: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[id] = data
	return int64(len(data)), nil
}

func (m *memoryStore) RemoveContent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, id)
	return nil
}

func (m *memoryStore) OpenContent(id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.content[id]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = make(map[string][]byte)
	return nil
}

func (m *memoryStore) Address(id string) string {
	return "mem://" + id
}

// NewMemoryStagingArea creates an in-memory staging area.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryStagingArea(ids drive.IDGenerator, maxSize int64) drive.StagingArea {
	return newStagingArea(&memoryStore{content: make(map[string][]byte)}, ids, maxSize)
}
