package staging

import (
	"fmt"
	"io"
	"sync"

	"drive-go/internal/drive"
)

// stagingArea implements drive.StagingArea using a pluggable stagingStore
// for the storage mechanics. All shared accounting lives here.
type stagingArea struct {
	store   stagingStore
	ids     drive.IDGenerator
	maxSize int64

	mu    sync.Mutex
	items map[string]int64 // id -> size of live blobs
	total int64
}

var (
	_ drive.StagingArea = (*stagingArea)(nil)
	_ io.Closer         = (*stagingArea)(nil)
)

func newStagingArea(store stagingStore, ids drive.IDGenerator, maxSize int64) *stagingArea {
	if ids == nil {
		ids = drive.UUIDGenerator{}
	}
	return &stagingArea{
		store:   store,
		ids:     ids,
		maxSize: maxSize,
		items:   make(map[string]int64),
	}
}

// Put stores r as a new blob. The content is removed again when the
// area would exceed its maximum size.
func (s *stagingArea) Put(name string, r io.Reader) (drive.Blob, error) {
	id := s.ids.New()

	// The store reads outside the lock; a slow stream must not block
	// releases or other puts.
	size, err := s.store.StoreContent(id, name, limitReader(r, s.maxSize))
	if err != nil {
		s.store.RemoveContent(id)
		return nil, fmt.Errorf("storing content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total+size > s.maxSize {
		s.store.RemoveContent(id)
		return nil, fmt.Errorf("staging area full: would exceed max size of %d bytes", s.maxSize)
	}
	s.items[id] = size
	s.total += size

	return &blob{area: s, id: id, address: s.store.Address(id), size: size}, nil
}

// Count returns the number of unreleased blobs.
func (s *stagingArea) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

// Size returns the total size of unreleased blobs in bytes.
func (s *stagingArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

// Close drops every blob still staged. Blobs released afterwards are
// no-ops.
func (s *stagingArea) Close() error {
	s.mu.Lock()
	s.items = make(map[string]int64)
	s.total = 0
	s.mu.Unlock()
	return s.store.Close()
}

func (s *stagingArea) release(id string) error {
	s.mu.Lock()
	size, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.items, id)
	s.total -= size
	s.mu.Unlock()

	if err := s.store.RemoveContent(id); err != nil {
		return fmt.Errorf("removing staged content %s: %w", id, err)
	}
	return nil
}

func (s *stagingArea) open(id string) (io.ReadCloser, error) {
	s.mu.Lock()
	_, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("staged content %s has been released", id)
	}
	return s.store.OpenContent(id)
}

// limitReader fails once more than max bytes have been read so an
// oversized stream is rejected without being stored completely.
func limitReader(r io.Reader, max int64) io.Reader {
	return &limitedReader{r: r, left: max}
}

type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, fmt.Errorf("staging area full: content exceeds max size")
	}
	return n, err
}

type blob struct {
	area    *stagingArea
	id      string
	address string
	size    int64
}

var _ drive.Blob = (*blob)(nil)

func (b *blob) ID() string      { return b.id }
func (b *blob) Address() string { return b.address }
func (b *blob) Size() int64     { return b.size }

func (b *blob) Open() (io.ReadCloser, error) { return b.area.open(b.id) }

func (b *blob) Release() error { return b.area.release(b.id) }
