package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"drive-go/internal/drive"
)

// writeTree creates files (relative path -> content) under a temp dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("creating dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
	return root
}

func relNames(t *testing.T, root string, files []drive.LocalFile) []string {
	t.Helper()
	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.(*OSFile).Path())
		if err != nil {
			t.Fatalf("Rel() error = %v", err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestResolver_Resolve(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":             "aaa",
		"b.log":             "bb",
		"sub/c.txt":         "c",
		"sub/deep/d.txt":    "dddd",
		"node_modules/x.js": "x",
		".driveignore":      "node_modules/\n# comment\n",
		"sub/keep.log":      "k",
		"sub/deep/skip.tmp": "t",
	})
	r := NewResolver([]string{"*.log", "!keep.log", "*.tmp"}, nil)

	t.Run("directory without recursion", func(t *testing.T) {
		files, err := r.Resolve([]string{root}, false)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		got := relNames(t, root, files)
		want := []string{"a.txt"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Resolve() = %v, want %v", got, want)
		}
	})

	t.Run("recursive honors ignore patterns", func(t *testing.T) {
		files, err := r.Resolve([]string{root}, true)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		got := relNames(t, root, files)
		want := []string{"a.txt", "sub/c.txt", "sub/deep/d.txt", "sub/keep.log"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Resolve() = %v, want %v", got, want)
		}
	})

	t.Run("explicit file is never ignored", func(t *testing.T) {
		files, err := r.Resolve([]string{filepath.Join(root, "b.log")}, false)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("expected 1 file, got %d", len(files))
		}
		f := files[0]
		if f.Name() != "b.log" || f.Size() != 2 {
			t.Errorf("got name=%q size=%d, want b.log/2", f.Name(), f.Size())
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "bb" {
			t.Errorf("content = %q, want %q", data, "bb")
		}
	})

	t.Run("missing path is a validation error", func(t *testing.T) {
		_, err := r.Resolve([]string{filepath.Join(root, "nope.txt")}, false)
		if !errors.Is(err, drive.ErrValidation) {
			t.Fatalf("Resolve() error = %v, want ErrValidation", err)
		}
	})
}

func TestResolver_ConfigPatternsWithoutIgnoreFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"photo.jpg": "p",
		".DS_Store": "junk",
		"notes.md":  "n",
	})
	r := NewResolver([]string{".DS_Store"}, nil)

	files, err := r.Resolve([]string{root}, false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got := relNames(t, root, files)
	want := []string{"notes.md", "photo.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}
