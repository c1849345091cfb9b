// Package fs turns command-line paths into drive.LocalFile handles.
package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"drive-go/internal/drive"
)

// OSFile is a regular file on disk. Size is taken when the file is
// resolved; the upload fails with drive.ErrValidation if it changes.
type OSFile struct {
	path string
	name string
	size int64
}

var _ drive.LocalFile = (*OSFile)(nil)

func (f *OSFile) Name() string { return f.name }
func (f *OSFile) Size() int64  { return f.size }
func (f *OSFile) Path() string { return f.path }

func (f *OSFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Resolver expands paths given on the command line into files to upload.
type Resolver struct {
	ignore []string
	logger drive.Logger
}

// NewResolver creates a resolver. ignore holds patterns from the config;
// each directory root may add more through its .driveignore file.
func NewResolver(ignore []string, logger drive.Logger) *Resolver {
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &Resolver{ignore: ignore, logger: logger}
}

// Resolve returns one LocalFile per regular file named by rawPaths.
// Directories are expanded to the files directly inside them, or to the
// whole tree when recursive is set. Files named explicitly are never
// filtered by ignore patterns.
func (r *Resolver) Resolve(rawPaths []string, recursive bool) ([]drive.LocalFile, error) {
	var out []drive.LocalFile
	for _, raw := range rawPaths {
		absPath, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving %s: %v", drive.ErrValidation, raw, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", drive.ErrValidation, err)
		}
		if err := checkMode(absPath, info.Mode()); err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, &OSFile{path: absPath, name: info.Name(), size: info.Size()})
			continue
		}
		files, err := r.findFiles(absPath, recursive)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func (r *Resolver) matcher(root string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(r.ignore)+len(fromFile))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, r.ignore...)
	patterns = append(patterns, fromFile...)
	return NewIgnoreMatcher(patterns), nil
}

// findFiles lists the regular files under root in lexical order. Uploads
// keep the basename only, so files in subdirectories may share a name.
func (r *Resolver) findFiles(root string, recursive bool) ([]drive.LocalFile, error) {
	m, err := r.matcher(root)
	if err != nil {
		return nil, err
	}

	var files []drive.LocalFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || m.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			r.logger.Debug("skipping non-regular file", "path", p)
			return nil
		}
		if m.Match(rel) {
			r.logger.Debug("ignoring file", "path", p)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, &OSFile{path: p, name: d.Name(), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].(*OSFile).path < files[j].(*OSFile).path
	})
	return files, nil
}

func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("%w: device files not supported: %s", drive.ErrValidation, path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("%w: named pipes not supported: %s", drive.ErrValidation, path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("%w: sockets not supported: %s", drive.ErrValidation, path)
	}
	return nil
}
