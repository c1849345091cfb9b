package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"drive-go/internal/config"
	"drive-go/internal/drive"
)

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return fmt.Sprintf("blob-%d", g.n)
}

func newTestAreas(t *testing.T, maxSize int64) map[string]drive.StagingArea {
	t.Helper()
	fsArea, err := NewFileSystemStagingArea(t.TempDir(), &seqIDs{}, maxSize)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	return map[string]drive.StagingArea{
		"memory":     NewMemoryStagingArea(&seqIDs{}, maxSize),
		"filesystem": fsArea,
	}
}

func readAll(t *testing.T, b drive.Blob) string {
	t.Helper()
	rc, err := b.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(data)
}

func TestStagingArea_Put(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			b, err := sa.Put("report.pdf", strings.NewReader("hello"))
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if b.Size() != 5 {
				t.Errorf("Size() = %d, want 5", b.Size())
			}
			if b.Address() == "" {
				t.Error("Address() is empty")
			}
			if got := readAll(t, b); got != "hello" {
				t.Errorf("content = %q, want %q", got, "hello")
			}

			count, err := sa.Count()
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
			size, _ := sa.Size()
			if size != 5 {
				t.Errorf("Size() = %d, want 5", size)
			}
		})
	}
}

func TestStagingArea_Release(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			b, err := sa.Put("a.txt", strings.NewReader("data"))
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			if err := b.Release(); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if err := b.Release(); err != nil {
				t.Fatalf("second Release() error = %v", err)
			}

			count, _ := sa.Count()
			if count != 0 {
				t.Errorf("Count() after release = %d, want 0", count)
			}
			size, _ := sa.Size()
			if size != 0 {
				t.Errorf("Size() after release = %d, want 0", size)
			}
			if _, err := b.Open(); err == nil {
				t.Error("Open() after release expected error")
			}
		})
	}
}

func TestStagingArea_SizeLimit(t *testing.T) {
	for name, sa := range newTestAreas(t, 10) {
		t.Run(name, func(t *testing.T) {
			if _, err := sa.Put("small.txt", strings.NewReader("hi")); err != nil {
				t.Fatalf("Put(small) error = %v", err)
			}

			_, err := sa.Put("big.txt", strings.NewReader("this is way too big"))
			if err == nil {
				t.Fatal("expected error when exceeding size limit")
			}
			if !strings.Contains(err.Error(), "staging area full") {
				t.Errorf("error = %v, want 'staging area full'", err)
			}

			_, err = sa.Put("medium.txt", strings.NewReader("123456789"))
			if err == nil {
				t.Fatal("expected error when total would exceed size limit")
			}

			count, _ := sa.Count()
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
		})
	}
}

func TestStagingArea_PutReadError(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			_, err := sa.Put("x", iotest.ErrReader(boom))
			if !errors.Is(err, boom) {
				t.Fatalf("Put() error = %v, want %v", err, boom)
			}
			count, _ := sa.Count()
			if count != 0 {
				t.Errorf("Count() = %d, want 0", count)
			}
		})
	}
}

func TestFileSystemStagingArea(t *testing.T) {
	t.Run("address is a path that keeps the file name", func(t *testing.T) {
		dir := t.TempDir()
		sa, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024)
		if err != nil {
			t.Fatalf("NewFileSystemStagingArea() error = %v", err)
		}
		b, err := sa.Put("../../photo.jpg", strings.NewReader("jpeg"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if filepath.Base(b.Address()) != "photo.jpg" {
			t.Errorf("Address() = %q, want base photo.jpg", b.Address())
		}
		if !strings.HasPrefix(b.Address(), dir) {
			t.Errorf("Address() = %q, want under %q", b.Address(), dir)
		}
		data, err := os.ReadFile(b.Address())
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(data) != "jpeg" {
			t.Errorf("content = %q, want %q", data, "jpeg")
		}

		if err := b.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if _, err := os.Stat(b.Address()); !os.IsNotExist(err) {
			t.Errorf("Stat() after release error = %v, want not exist", err)
		}
	})

	t.Run("clears sessions without a live owner", func(t *testing.T) {
		dir := t.TempDir()
		for session, owner := range map[string]string{
			"no-owner":  "",
			"bad-owner": "not-a-pid\n",
		} {
			stale := filepath.Join(dir, "files", session, "blob", "leftover.txt")
			if err := os.MkdirAll(filepath.Dir(stale), 0700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(stale, []byte("x"), 0600); err != nil {
				t.Fatal(err)
			}
			if owner != "" {
				ownerPath := filepath.Join(dir, "files", session, ownerFileName)
				if err := os.WriteFile(ownerPath, []byte(owner), 0600); err != nil {
					t.Fatal(err)
				}
			}
		}

		if _, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024); err != nil {
			t.Fatalf("NewFileSystemStagingArea() error = %v", err)
		}
		for _, session := range []string{"no-owner", "bad-owner"} {
			if _, err := os.Stat(filepath.Join(dir, "files", session)); !os.IsNotExist(err) {
				t.Errorf("session %s still present, Stat() error = %v", session, err)
			}
		}
	})

	t.Run("keeps blobs of another live area", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024)
		if err != nil {
			t.Fatalf("NewFileSystemStagingArea() error = %v", err)
		}
		b, err := first.Put("report.pdf", strings.NewReader("quarterly"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		second, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024)
		if err != nil {
			t.Fatalf("second NewFileSystemStagingArea() error = %v", err)
		}
		if _, err := os.Stat(b.Address()); err != nil {
			t.Fatalf("Stat() after second area error = %v", err)
		}
		if got := readAll(t, b); got != "quarterly" {
			t.Errorf("content = %q, want %q", got, "quarterly")
		}

		other, err := second.Put("report.pdf", strings.NewReader("draft"))
		if err != nil {
			t.Fatalf("second Put() error = %v", err)
		}
		if other.Address() == b.Address() {
			t.Errorf("both areas staged at %q", b.Address())
		}
		if err := other.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if got := readAll(t, b); got != "quarterly" {
			t.Errorf("content after sibling release = %q, want %q", got, "quarterly")
		}
	})

	t.Run("close removes only its own session", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024)
		if err != nil {
			t.Fatalf("NewFileSystemStagingArea() error = %v", err)
		}
		second, err := NewFileSystemStagingArea(dir, &seqIDs{}, 1024)
		if err != nil {
			t.Fatalf("NewFileSystemStagingArea() error = %v", err)
		}
		kept, err := first.Put("a.txt", strings.NewReader("a"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		gone, err := second.Put("b.txt", strings.NewReader("b"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		if err := second.(io.Closer).Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := os.Stat(gone.Address()); !os.IsNotExist(err) {
			t.Errorf("Stat() after Close error = %v, want not exist", err)
		}
		if _, err := os.Stat(kept.Address()); err != nil {
			t.Errorf("Stat() of sibling blob error = %v", err)
		}
		if count, _ := second.Count(); count != 0 {
			t.Errorf("Count() after Close = %d, want 0", count)
		}
		if err := gone.Release(); err != nil {
			t.Errorf("Release() after Close error = %v", err)
		}
	})
}

func TestNewStagingAreaFromConfig(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		sa, err := NewStagingAreaFromConfig(config.StagingConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewStagingAreaFromConfig() error = %v", err)
		}
		if sa == nil {
			t.Fatal("NewStagingAreaFromConfig() returned nil")
		}
	})

	t.Run("filesystem requires staging_dir", func(t *testing.T) {
		_, err := NewStagingAreaFromConfig(config.StagingConfig{Type: "filesystem"}, nil)
		if err == nil {
			t.Fatal("expected error for missing staging_dir")
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg := config.StagingConfig{Type: "filesystem", StagingDir: t.TempDir()}
		if _, err := NewStagingAreaFromConfig(cfg, nil); err != nil {
			t.Fatalf("NewStagingAreaFromConfig() error = %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewStagingAreaFromConfig(config.StagingConfig{Type: "tape"}, nil)
		if err == nil {
			t.Fatal("expected error for unknown type")
		}
	})
}
