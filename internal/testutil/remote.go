package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"drive-go/internal/drive"
)

// Operation names used by FakeRemote hooks and call counts.
const (
	OpList    = "list"
	OpSearch  = "search"
	OpTrash   = "trash"
	OpFetch   = "fetch"
	OpDelete  = "delete"
	OpRestore = "restore"
	OpPurge   = "purge"
	OpStar    = "star"
	OpUpload  = "upload"
)

// Hook runs at the start of a FakeRemote call. A non-nil error fails the
// call. Hooks may block to control the order in which calls complete.
type Hook func(ctx context.Context, call int, arg string) error

type fakeFile struct {
	record  drive.FileRecord
	content []byte
}

// FakeRemote is an in-memory drive.RemoteFileService that follows the file
// server's rules: soft delete only for active files, restore only for
// trashed ones, permanent delete for any file, case-insensitive search over
// active files. Safe for concurrent use.
type FakeRemote struct {
	mu     sync.Mutex
	files  map[string]*fakeFile
	order  []string
	nextID int
	clock  *StubClock
	hooks  map[string]Hook
	calls  map[string]int

	// UploadChunk is the number of bytes read between progress reports.
	UploadChunk int
	// UploadProgress, when set, replaces the byte-driven reports with these
	// raw sent values (reported against the body size), in order.
	UploadProgress []int64
}

var _ drive.RemoteFileService = (*FakeRemote)(nil)

// NewFakeRemote creates an empty fake server.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		files:       make(map[string]*fakeFile),
		clock:       FixedClock(),
		hooks:       make(map[string]Hook),
		calls:       make(map[string]int),
		UploadChunk: 4,
	}
}

// Add stores a file directly and returns its record.
func (f *FakeRemote) Add(name string, content []byte) drive.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, content)
}

func (f *FakeRemote) addLocked(name string, content []byte) drive.FileRecord {
	f.nextID++
	now := f.clock.Now()
	f.clock.Advance(time.Second)
	rec := drive.FileRecord{
		ID:          fmt.Sprintf("file-%d", f.nextID),
		Name:        name,
		Size:        int64(len(content)),
		ContentType: http.DetectContentType(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.files[rec.ID] = &fakeFile{record: rec, content: append([]byte(nil), content...)}
	f.order = append(f.order, rec.ID)
	return rec
}

// Get returns the stored record for id.
func (f *FakeRemote) Get(id string) (drive.FileRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[id]
	if !ok {
		return drive.FileRecord{}, false
	}
	return ff.record, true
}

// Content returns the stored bytes for id.
func (f *FakeRemote) Content(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ff, ok := f.files[id]; ok {
		return append([]byte(nil), ff.content...)
	}
	return nil
}

// SetHook installs fn for op, replacing any previous hook.
func (f *FakeRemote) SetHook(op string, fn Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = fn
}

// FailWith makes every call of op fail with err.
func (f *FakeRemote) FailWith(op string, err error) {
	f.SetHook(op, func(context.Context, int, string) error { return err })
}

// Calls returns how many times op has been called.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeRemote) enter(ctx context.Context, op, arg string) error {
	f.mu.Lock()
	f.calls[op]++
	call := f.calls[op]
	hook := f.hooks[op]
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, call, arg); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func notFound(op, id string) error {
	return &drive.RemoteError{Op: op, Status: http.StatusNotFound, Detail: "File not found: " + id, Err: drive.ErrNotFound}
}

func (f *FakeRemote) list(match func(drive.FileRecord) bool) []drive.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []drive.FileRecord{}
	for _, id := range f.order {
		if rec := f.files[id].record; match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (f *FakeRemote) List(ctx context.Context) ([]drive.FileRecord, error) {
	if err := f.enter(ctx, OpList, ""); err != nil {
		return nil, err
	}
	return f.list(func(r drive.FileRecord) bool { return !r.Trashed }), nil
}

func (f *FakeRemote) Search(ctx context.Context, term string) ([]drive.FileRecord, error) {
	if err := f.enter(ctx, OpSearch, term); err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	return f.list(func(r drive.FileRecord) bool {
		return !r.Trashed && strings.Contains(strings.ToLower(r.Name), term)
	}), nil
}

func (f *FakeRemote) ListTrash(ctx context.Context) ([]drive.FileRecord, error) {
	if err := f.enter(ctx, OpTrash, ""); err != nil {
		return nil, err
	}
	return f.list(func(r drive.FileRecord) bool { return r.Trashed }), nil
}

func (f *FakeRemote) FetchContent(ctx context.Context, id string) (*drive.Content, error) {
	if err := f.enter(ctx, OpFetch, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[id]
	if !ok {
		return nil, notFound(OpFetch, id)
	}
	return &drive.Content{
		Body:        io.NopCloser(bytes.NewReader(ff.content)),
		ContentType: ff.record.ContentType,
		Size:        int64(len(ff.content)),
	}, nil
}

func (f *FakeRemote) SoftDelete(ctx context.Context, id string) error {
	if err := f.enter(ctx, OpDelete, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[id]
	if !ok || ff.record.Trashed {
		return notFound(OpDelete, id)
	}
	ff.record.Trashed = true
	return nil
}

func (f *FakeRemote) Restore(ctx context.Context, id string) error {
	if err := f.enter(ctx, OpRestore, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[id]
	if !ok || !ff.record.Trashed {
		return notFound(OpRestore, id)
	}
	ff.record.Trashed = false
	return nil
}

func (f *FakeRemote) PermanentDelete(ctx context.Context, id string) error {
	if err := f.enter(ctx, OpPurge, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return notFound(OpPurge, id)
	}
	delete(f.files, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeRemote) ToggleStar(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, OpStar, id); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[id]
	if !ok {
		return false, notFound(OpStar, id)
	}
	ff.record.Starred = !ff.record.Starred
	return ff.record.Starred, nil
}

func (f *FakeRemote) Upload(ctx context.Context, name string, r io.Reader, size int64, progress drive.ProgressFunc) (drive.FileRecord, error) {
	if err := f.enter(ctx, OpUpload, name); err != nil {
		return drive.FileRecord{}, err
	}

	var buf bytes.Buffer
	chunk := make([]byte, max(f.UploadChunk, 1))
	for {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if n > 0 && progress != nil && f.UploadProgress == nil {
			progress(int64(buf.Len()), size)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return drive.FileRecord{}, &drive.RemoteError{Op: OpUpload, Detail: err.Error(), Err: drive.ErrTransport}
		}
	}
	if progress != nil {
		for _, sent := range f.UploadProgress {
			progress(sent, size)
		}
	}
	if int64(buf.Len()) != size {
		return drive.FileRecord{}, &drive.RemoteError{
			Op:     OpUpload,
			Status: http.StatusBadRequest,
			Detail: fmt.Sprintf("size mismatch: declared %d, got %d", size, buf.Len()),
			Err:    drive.ErrValidation,
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, buf.Bytes()), nil
}
