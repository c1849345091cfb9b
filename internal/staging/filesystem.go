package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"drive-go/internal/drive"
)

const (
	ownerFileName = "owner.pid"

	// pendingPrefix marks a session directory that is still being created.
	pendingPrefix = ".pending-"

	// pendingMaxAge is how long an unfinished session directory is kept
	// before a sweep treats it as abandoned.
	pendingMaxAge = time.Hour
)

// filesystemStore keeps staged content as files. The address of an item is
// its absolute path, so previews can be handed to an external viewer.
//
// Every staging area owns one session directory, so several drive
// processes can share a staging_dir without touching each other's blobs.
//
// Directory structure:
//
//	<staging_dir>/
//	  files/
//	    <session>/
//	      owner.pid   (pid of the owning process)
//	      <id>/
//	        <name>    (staged content, keeps the original file name)
type filesystemStore struct {
	filesDir string // the session directory

	mu    sync.Mutex
	paths map[string]string // id -> content path
}

var _ stagingStore = (*filesystemStore)(nil)

func (f *filesystemStore) StoreContent(id, name string, r io.Reader) (int64, error) {
	dir := filepath.Join(f.filesDir, id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return 0, fmt.Errorf("creating item directory: %w", err)
	}
	path := filepath.Join(dir, safeName(name))

	f.mu.Lock()
	f.paths[id] = path
	f.mu.Unlock()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating staged file: %w", err)
	}
	size, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("writing staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing staged file: %w", err)
	}
	return size, nil
}

func (f *filesystemStore) RemoveContent(id string) error {
	f.mu.Lock()
	delete(f.paths, id)
	f.mu.Unlock()
	return os.RemoveAll(filepath.Join(f.filesDir, id))
}

// Close removes the session directory with everything still staged in it.
func (f *filesystemStore) Close() error {
	f.mu.Lock()
	f.paths = make(map[string]string)
	f.mu.Unlock()
	if err := os.RemoveAll(f.filesDir); err != nil {
		return fmt.Errorf("removing staging session: %w", err)
	}
	return nil
}

func (f *filesystemStore) OpenContent(id string) (io.ReadCloser, error) {
	f.mu.Lock()
	path, ok := f.paths[id]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("content not found: %s", id)
	}
	return os.Open(path)
}

func (f *filesystemStore) Address(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[id]
}

// safeName reduces name to a single path element.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "content"
	}
	return name
}

// NewFileSystemStagingArea creates a staging area in a fresh session
// directory under stagingDir. Sessions left behind by processes that no
// longer run are removed; sessions of live processes are kept.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(stagingDir string, ids drive.IDGenerator, maxSize int64) (drive.StagingArea, error) {
	filesDir, err := filepath.Abs(filepath.Join(stagingDir, "files"))
	if err != nil {
		return nil, fmt.Errorf("resolving staging directory: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := sweepSessions(filesDir, time.Now()); err != nil {
		return nil, err
	}

	sessionDir, err := newSession(filesDir)
	if err != nil {
		return nil, err
	}

	store := &filesystemStore{filesDir: sessionDir, paths: make(map[string]string)}
	return newStagingArea(store, ids, maxSize), nil
}

// newSession creates a session directory owned by the current process.
// The directory is prepared under a pending name and renamed into place,
// so a sweep never sees a session without its owner file.
func newSession(filesDir string) (string, error) {
	pending, err := os.MkdirTemp(filesDir, pendingPrefix)
	if err != nil {
		return "", fmt.Errorf("creating staging session: %w", err)
	}
	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(filepath.Join(pending, ownerFileName), pid, 0600); err != nil {
		os.RemoveAll(pending)
		return "", fmt.Errorf("writing staging session owner: %w", err)
	}
	dir := filepath.Join(filesDir, uuid.NewString())
	if err := os.Rename(pending, dir); err != nil {
		os.RemoveAll(pending)
		return "", fmt.Errorf("activating staging session: %w", err)
	}
	return dir, nil
}

// sweepSessions removes session directories whose owner is gone.
func sweepSessions(filesDir string, now time.Time) error {
	entries, err := os.ReadDir(filesDir)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(filesDir, e.Name())
		if strings.HasPrefix(e.Name(), pendingPrefix) {
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < pendingMaxAge {
				continue
			}
		} else if sessionAlive(dir) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clearing stale staging session %s: %w", e.Name(), err)
		}
	}
	return nil
}

// sessionAlive reports whether the process recorded in dir's owner file
// is still running. A missing or unreadable owner file means abandoned.
func sessionAlive(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, ownerFileName))
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	return pid == os.Getpid() || processAlive(pid)
}
