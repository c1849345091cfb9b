package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drive-go/internal/database/migrations"
	"drive-go/internal/drive"
	"drive-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements drive.Database on SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ drive.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path (or ":memory:") and applies
// pending migrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path, now: time.Now}, nil
}

// NewSQLiteDatabaseFromDB wraps a connection whose schema the caller manages.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, now: time.Now}
}

// OpenConnection opens a SQLite connection with foreign keys enabled.
// SQLite allows a single writer, and every connection to ":memory:" is a
// separate database, so the pool is limited to one connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Session operations

func (s *SQLiteDatabase) SaveSession(sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (server_url, username, token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		sess.ServerURL, sess.Username, sess.Token, nullTime(sess.ExpiresAt), sess.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSession(serverURL string) (*model.Session, error) {
	var (
		sess    model.Session
		expires sql.NullTime
	)
	err := s.db.QueryRow(`
		SELECT server_url, username, token, expires_at, created_at
		FROM sessions WHERE server_url = ?`, serverURL).
		Scan(&sess.ServerURL, &sess.Username, &sess.Token, &expires, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	sess.ExpiresAt = timePtr(expires)
	return &sess, nil
}

func (s *SQLiteDatabase) DeleteSession(serverURL string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE server_url = ?", serverURL); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  s.now().UTC(),
	}
	res, err := s.db.Exec(`
		INSERT INTO operations (operation, parameters, status, started_at)
		VALUES (?, ?, ?, ?)`, op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	res, err := s.db.Exec(`
		UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var out []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.FinishedAt = timePtr(finished)
		out = append(out, &op)
	}
	return out, rows.Err()
}

// Upload history

func (s *SQLiteDatabase) RecordUpload(r *model.UploadRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO uploads (task_id, operation_id, name, size, status, error, file_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, nullID(r.OperationID), r.Name, r.Size, r.Status, r.Error, r.FileID,
		r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording upload %s: %w", r.TaskID, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListUploads(limit int) ([]*model.UploadRecord, error) {
	rows, err := s.db.Query(`
		SELECT task_id, operation_id, name, size, status, error, file_id, started_at, finished_at
		FROM uploads ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var out []*model.UploadRecord
	for rows.Next() {
		var (
			r  model.UploadRecord
			op sql.NullInt64
		)
		if err := rows.Scan(&r.TaskID, &op, &r.Name, &r.Size, &r.Status, &r.Error, &r.FileID,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		r.OperationID = op.Int64
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Export history

func (s *SQLiteDatabase) RecordExport(r *model.ExportRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	res, err := s.db.Exec(`
		INSERT INTO exports (operation_id, file_id, file_name, sink, location, size, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(r.OperationID), r.FileID, r.FileName, r.Sink, r.Location, r.Size, r.Checksum, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording export of %s: %w", r.FileID, err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading export id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListExports(limit int) ([]*model.ExportRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, operation_id, file_id, file_name, sink, location, size, checksum, created_at
		FROM exports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing exports: %w", err)
	}
	defer rows.Close()

	var out []*model.ExportRecord
	for rows.Next() {
		var (
			r  model.ExportRecord
			op sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &op, &r.FileID, &r.FileName, &r.Sink, &r.Location, &r.Size,
			&r.Checksum, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		r.OperationID = op.Int64
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
