package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"drive-go/internal/drive"
)

// FileSystemSink writes exports below a root directory:
//
//	<root>/
//	  <file id>/
//	    <file name>
type FileSystemSink struct {
	name string
	root string
}

// NewFileSystemSink creates a new filesystem sink rooted at the given path.
func NewFileSystemSink(name, root string) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileSystemSink{name: name, root: root}, nil
}

func (s *FileSystemSink) Name() string { return s.name }

// Put writes the content to <root>/<key> atomically.
func (s *FileSystemSink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	destPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := writeFile(destPath, r, size); err != nil {
		return "", err
	}
	return destPath, nil
}

// path resolves key below the root and rejects keys that escape it.
func (s *FileSystemSink) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid export key %q", key)
	}
	return p, nil
}

// ValidateSetup verifies that the export root is an accessible directory.
func (s *FileSystemSink) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("export root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
// expectedSize is checked unless it is negative.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemSink implements drive.ExportSink interface
var _ drive.ExportSink = (*FileSystemSink)(nil)
