package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is read from the root of every uploaded directory.
const IgnoreFileName = ".driveignore"

// defaultIgnorePatterns are always applied on top of config and .driveignore.
var defaultIgnorePatterns = []string{IgnoreFileName}

type ignorePattern struct {
	glob      string
	matchPath bool // match the relative path instead of the basename
	dirOnly   bool // pattern ended in '/'
	negate    bool // pattern started with '!'
}

// IgnoreMatcher decides which files of a directory upload are skipped.
//
// Patterns use filepath.Match syntax. A pattern containing '/' is matched
// against the slash-separated path relative to the upload root, any other
// pattern against the basename. A trailing '/' restricts a pattern to
// directories and a leading '!' re-includes what an earlier pattern
// excluded. The last matching pattern decides.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses rawPatterns. Blank lines and lines starting with
// '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var p ignorePattern
		if strings.HasPrefix(raw, "!") {
			p.negate = true
			raw = raw[1:]
		}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		raw = strings.TrimPrefix(raw, "/")
		if raw == "" {
			continue
		}
		p.glob = raw
		p.matchPath = strings.Contains(raw, "/")
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the file at relativePath is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	return m.match(relativePath, false)
}

// MatchDir reports whether the directory at relativePath is ignored. An
// ignored directory is not descended into.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	return m.match(relativePath, true)
}

func (m *IgnoreMatcher) match(relativePath string, isDir bool) bool {
	if m == nil || relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	ignored := false
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := basename
		if p.matchPath {
			target = normalized
		}
		matched, err := filepath.Match(p.glob, target)
		if err != nil || !matched {
			continue
		}
		ignored = !p.negate
	}
	return ignored
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
