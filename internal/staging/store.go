package staging

import "io"

// stagingStore abstracts the storage mechanics for a staging area.
// Accounting (sizes, limits, live items) lives in stagingArea. Stores must
// allow concurrent calls for distinct ids.
type stagingStore interface {
	// StoreContent reads r to EOF and stores it under id. Returns the size.
	StoreContent(id, name string, r io.Reader) (size int64, err error)

	// RemoveContent removes stored content by id.
	RemoveContent(id string) error

	// OpenContent returns a reader for stored content by id.
	OpenContent(id string) (io.ReadCloser, error)

	// Address returns a locally resolvable reference to the content.
	Address(id string) string

	// Close removes all content the store still holds.
	Close() error
}
