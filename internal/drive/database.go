package drive

import "drive-go/internal/model"

// Database is the local state store: the session token and the history of
// uploads and exports. The remote file list is never cached here.
type Database interface {
	// SaveSession stores s, replacing any session for the same server.
	SaveSession(s *model.Session) error

	// FindSession returns the session for serverURL, or nil if none.
	FindSession(serverURL string) (*model.Session, error)

	// DeleteSession removes the session for serverURL. Missing is not an error.
	DeleteSession(serverURL string) error

	// CreateOperation records the start of a mutating command.
	CreateOperation(operation, parameters string) (*model.Operation, error)

	// FinishOperation sets the final status of an operation.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// RecordUpload stores the terminal state of an upload task.
	RecordUpload(r *model.UploadRecord) error

	// ListUploads returns the most recent uploads, newest first.
	ListUploads(limit int) ([]*model.UploadRecord, error)

	// RecordExport stores a completed export and sets r.ID.
	RecordExport(r *model.ExportRecord) error

	// ListExports returns the most recent exports, newest first.
	ListExports(limit int) ([]*model.ExportRecord, error)

	// CheckMigrations returns an error unless the schema is current.
	CheckMigrations() error

	Close() error
}
