package drive

import (
	"io"
)

// LocalFile is a read-once handle to a file on the user's machine that is
// about to be uploaded. Implementations are provided by the fs package.
type LocalFile interface {
	// Name is the display name sent to the server (usually the basename).
	Name() string

	// Size is the number of bytes Open will yield.
	Size() int64

	// Open returns the file content. It is called at most once per task.
	Open() (io.ReadCloser, error)
}

// Transform rewrites a byte stream, e.g. encrypting an upload or decrypting
// preview content.
type Transform func(r io.Reader, w io.Writer) error
