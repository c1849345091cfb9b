package drive

import (
	"fmt"
	"time"
)

// Scope selects which of the two mutually exclusive file sets a view shows.
type Scope string

const (
	ScopeActive Scope = "active"
	ScopeTrash  Scope = "trash"
)

// ParseScope converts a user-supplied scope name into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeActive, "":
		return ScopeActive, nil
	case ScopeTrash:
		return ScopeTrash, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrValidation, s)
	}
}

// FileRecord is the server-tracked metadata for one stored file.
// A record belongs to the trash set when Trashed is true and to the active
// set otherwise.
type FileRecord struct {
	ID          string
	Name        string
	Size        int64
	ContentType string
	Starred     bool
	Trashed     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scope returns the set this record belongs to.
func (r FileRecord) Scope() Scope {
	if r.Trashed {
		return ScopeTrash
	}
	return ScopeActive
}
