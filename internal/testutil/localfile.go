package testutil

import (
	"bytes"
	"errors"
	"io"

	"drive-go/internal/drive"
)

// ErrUnreadable is returned by local files created with UnreadableFile.
var ErrUnreadable = errors.New("permission denied")

// MemFile is an in-memory drive.LocalFile.
type MemFile struct {
	FileName string
	Data     []byte
	// SizeOverride, when non-nil, is reported instead of len(Data).
	SizeOverride *int64
	// OpenErr is returned by Open when set.
	OpenErr error
}

var _ drive.LocalFile = (*MemFile)(nil)

// NewMemFile returns a readable file with the given content.
func NewMemFile(name string, data []byte) *MemFile {
	return &MemFile{FileName: name, Data: data}
}

// UnreadableFile returns a file whose Open fails.
func UnreadableFile(name string) *MemFile {
	return &MemFile{FileName: name, OpenErr: ErrUnreadable}
}

func (f *MemFile) Name() string { return f.FileName }

func (f *MemFile) Size() int64 {
	if f.SizeOverride != nil {
		return *f.SizeOverride
	}
	return int64(len(f.Data))
}

func (f *MemFile) Open() (io.ReadCloser, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// LocalFiles converts MemFiles to the interface slice the coordinator takes.
func LocalFiles(files ...*MemFile) []drive.LocalFile {
	out := make([]drive.LocalFile, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out
}
