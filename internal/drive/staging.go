package drive

import (
	"errors"
	"io"
)

// Blob is a piece of content spooled into the staging area. Its Address is
// locally resolvable (a file path for the filesystem store) until Release.
type Blob interface {
	ID() string
	Address() string
	Size() int64
	Open() (io.ReadCloser, error)

	// Release deletes the content. Calling it more than once is a no-op.
	Release() error
}

// StagingArea spools streams into local, addressable blobs. It backs both
// encrypted upload copies and preview handles.
type StagingArea interface {
	// Put reads r to EOF and stores it under a name derived from name.
	Put(name string, r io.Reader) (Blob, error)

	// Count returns the number of unreleased blobs.
	Count() (int, error)

	// Size returns the total size of unreleased blobs in bytes.
	Size() (int64, error)
}

// spool stores src in area, passing it through tf first when tf is set.
func spool(area StagingArea, name string, src io.Reader, tf Transform) (Blob, error) {
	if area == nil {
		return nil, errors.New("no staging area configured")
	}
	if tf == nil {
		return area.Put(name, src)
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(tf(src, pw))
	}()
	blob, err := area.Put(name, pr)
	// unblocks the transform when Put stopped reading early
	pr.Close()
	if err != nil {
		return nil, err
	}
	return blob, nil
}
