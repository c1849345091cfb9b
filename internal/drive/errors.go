package drive

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and server-side errors.
	ErrTransport = errors.New("transport error")

	// ErrNotFound is returned when an operation targets an id the server
	// does not know in the expected scope.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed input: unreadable local files, rejected
	// uploads, invalid scope/query combinations.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized means the session credential is missing, expired or
	// rejected. Handling it (asking the user to log in) is the caller's job.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrResourceRelease signals that a preview resource could not be
	// released. It is logged as a defect and never returned to the user.
	ErrResourceRelease = errors.New("resource release failed")

	// ErrSuperseded is returned by a Load whose result was discarded because
	// a newer Load was issued in the meantime.
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrClosed is returned by a preview manager after Teardown.
	ErrClosed = errors.New("preview manager closed")
)

// RemoteError describes a failed call to the remote file service.
// Err is one of the sentinel errors above so callers can use errors.Is.
type RemoteError struct {
	Op     string // e.g. "list", "upload"
	Status int    // HTTP status, 0 when the request never completed
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("%s: %v (status %d: %s)", e.Op, e.Err, e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Err, e.Status)
	case e.Detail != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }
