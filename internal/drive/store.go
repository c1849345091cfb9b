package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// FileCollectionStore holds the file list shown by the current view.
//
// The only local state is the result of the last successful Load. Mutations
// are sent to the remote service and followed by a reload of the current
// view; nothing is patched locally. Loads follow last-request-wins: when a
// newer Load has been issued, the result of an older one is discarded and
// its caller gets ErrSuperseded.
type FileCollectionStore struct {
	remote RemoteFileService
	logger Logger

	mu    sync.Mutex
	scope Scope
	query string
	files []FileRecord
	gen   uint64 // incremented by every Load
}

// NewFileCollectionStore creates an empty store viewing the active scope.
func NewFileCollectionStore(remote RemoteFileService, logger Logger) *FileCollectionStore {
	return &FileCollectionStore{
		remote: remote,
		logger: orNop(logger),
		scope:  ScopeActive,
	}
}

// Load fetches the files of scope, optionally filtered by a server-side
// substring query, and makes them the current view.
// On failure the previously loaded list is kept.
func (s *FileCollectionStore) Load(ctx context.Context, scope Scope, query string) ([]FileRecord, error) {
	switch scope {
	case ScopeActive:
	case ScopeTrash:
		if query != "" {
			return nil, fmt.Errorf("%w: search is only available for active files", ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, scope)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	files, err := s.fetch(ctx, scope, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("discarding stale load", "scope", scope, "query", query)
		return nil, ErrSuperseded
	}
	if err != nil {
		s.logger.Warn("load failed, keeping previous list", "scope", scope, "query", query, "error", err)
		return nil, fmt.Errorf("loading %s files: %w", scope, err)
	}

	s.scope = scope
	s.query = query
	s.files = files
	s.logger.Debug("files loaded", "scope", scope, "query", query, "count", len(files))
	return cloneRecords(files), nil
}

func (s *FileCollectionStore) fetch(ctx context.Context, scope Scope, query string) ([]FileRecord, error) {
	if scope == ScopeTrash {
		return s.remote.ListTrash(ctx)
	}
	if strings.TrimSpace(query) != "" {
		return s.remote.Search(ctx, query)
	}
	return s.remote.List(ctx)
}

// Refresh reloads the current view (scope and query of the last Load).
func (s *FileCollectionStore) Refresh(ctx context.Context) ([]FileRecord, error) {
	scope, query := s.View()
	return s.Load(ctx, scope, query)
}

// View returns the scope and query of the current view.
func (s *FileCollectionStore) View() (Scope, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope, s.query
}

// Files returns a copy of the list from the last successful Load.
func (s *FileCollectionStore) Files() []FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.files)
}

// Find looks up a record by id in the current list.
func (s *FileCollectionStore) Find(id string) (FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.ID == id {
			return f, true
		}
	}
	return FileRecord{}, false
}

// ToggleStar flips the starred flag of a file remotely, then reloads.
func (s *FileCollectionStore) ToggleStar(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	starred, err := s.remote.ToggleStar(ctx, id)
	if err != nil {
		return fmt.Errorf("toggling star on %s: %w", id, err)
	}
	s.logger.Info("star toggled", "id", id, "starred", starred)
	return s.reload(ctx)
}

// SoftDelete moves an active file to the trash, then reloads.
// Repeating it on a trashed id is answered by the server; it is not retried.
func (s *FileCollectionStore) SoftDelete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.remote.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("moving %s to trash: %w", id, err)
	}
	s.logger.Info("file moved to trash", "id", id)
	return s.reload(ctx)
}

// Restore moves a trashed file back to the active set, then reloads.
func (s *FileCollectionStore) Restore(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.remote.Restore(ctx, id); err != nil {
		return fmt.Errorf("restoring %s: %w", id, err)
	}
	s.logger.Info("file restored", "id", id)
	return s.reload(ctx)
}

// PermanentDelete destroys a trashed file, then reloads.
func (s *FileCollectionStore) PermanentDelete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.remote.PermanentDelete(ctx, id); err != nil {
		return fmt.Errorf("permanently deleting %s: %w", id, err)
	}
	s.logger.Info("file permanently deleted", "id", id)
	return s.reload(ctx)
}

// reload refreshes the current view after a successful mutation.
// A superseded reload is not an error: the newer load delivers the data.
func (s *FileCollectionStore) reload(ctx context.Context) error {
	if _, err := s.Refresh(ctx); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return nil
		}
		return fmt.Errorf("refreshing after change: %w", err)
	}
	return nil
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty file id", ErrValidation)
	}
	return nil
}

func cloneRecords(in []FileRecord) []FileRecord {
	if in == nil {
		return []FileRecord{}
	}
	out := make([]FileRecord, len(in))
	copy(out, in)
	return out
}
