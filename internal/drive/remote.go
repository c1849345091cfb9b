package drive

import (
	"context"
	"io"
)

// ProgressFunc receives cumulative byte counts while an upload body is sent.
// total is the full body size; it is never zero for a non-empty file.
type ProgressFunc func(sent, total int64)

// Content is the body of a fetched file. The caller must close it.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when unknown
}

// RemoteFileService is the I/O boundary to the file storage backend.
// Implementations contain no business logic and return errors that match
// the sentinels in this package (ErrTransport, ErrNotFound, ...).
type RemoteFileService interface {
	// List returns the active (non-trashed) files.
	List(ctx context.Context) ([]FileRecord, error)

	// Search returns active files whose name contains term.
	Search(ctx context.Context, term string) ([]FileRecord, error)

	// ListTrash returns the trashed files.
	ListTrash(ctx context.Context) ([]FileRecord, error)

	// FetchContent opens the binary content of a file.
	FetchContent(ctx context.Context, id string) (*Content, error)

	// SoftDelete moves an active file to the trash.
	SoftDelete(ctx context.Context, id string) error

	// Restore moves a trashed file back to the active set.
	Restore(ctx context.Context, id string) error

	// PermanentDelete destroys a file. It cannot be undone.
	PermanentDelete(ctx context.Context, id string) error

	// ToggleStar flips the starred flag and returns the new value.
	ToggleStar(ctx context.Context, id string) (bool, error)

	// Upload sends size bytes read from r as a new file called name.
	// progress may be nil.
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (FileRecord, error)
}
