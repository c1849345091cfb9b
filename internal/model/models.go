// Package model holds the rows of the local state database.
package model

import "time"

// Session is the access token issued by a file server. There is at most one
// per server URL.
type Session struct {
	ServerURL string
	Username  string
	Token     string
	ExpiresAt *time.Time // nil when the token carries no exp claim
	CreatedAt time.Time
}

// Expired reports whether the session's token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Operation is one mutating CLI command.
type Operation struct {
	ID         int64
	Operation  string // e.g. "upload", "export", "delete"
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
}

// UploadRecord is the terminal state of one upload task.
type UploadRecord struct {
	TaskID      string
	OperationID int64 // 0 when not tied to an operation
	Name        string
	Size        int64
	Status      string // "succeeded" or "failed"
	Error       string
	FileID      string // set when Status is "succeeded"
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ExportRecord is one completed export of a remote file to a sink.
type ExportRecord struct {
	ID          int64
	OperationID int64
	FileID      string
	FileName    string
	Sink        string
	Location    string
	Size        int64
	Checksum    string // SHA-256, lowercase hex
	CreatedAt   time.Time
}
