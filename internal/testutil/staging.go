package testutil

import (
	"errors"
	"io"
	"sync"

	"drive-go/internal/drive"
	"drive-go/internal/staging"
)

const (
	// DefaultStagingMaxSize is the default max size for test staging areas (10MB).
	DefaultStagingMaxSize = 10 * 1024 * 1024
)

// NewTestStagingArea creates a new in-memory staging area for testing.
func NewTestStagingArea() drive.StagingArea {
	return staging.NewMemoryStagingArea(NewPrefixedIDGenerator("blob"), DefaultStagingMaxSize)
}

// NewTestStagingAreaWithSize creates a new in-memory staging area with a custom max size.
func NewTestStagingAreaWithSize(maxSize int64) drive.StagingArea {
	return staging.NewMemoryStagingArea(NewPrefixedIDGenerator("blob"), maxSize)
}

// ErrStubRelease is returned by blobs of a FaultyStagingArea.
var ErrStubRelease = errors.New("stub release failure")

// FaultyStagingArea wraps a staging area so that releasing any blob fails
// after the content is actually removed. It records release attempts.
type FaultyStagingArea struct {
	drive.StagingArea

	mu       sync.Mutex
	released []string
}

func NewFaultyStagingArea() *FaultyStagingArea {
	return &FaultyStagingArea{StagingArea: NewTestStagingArea()}
}

func (f *FaultyStagingArea) Put(name string, r io.Reader) (drive.Blob, error) {
	b, err := f.StagingArea.Put(name, r)
	if err != nil {
		return nil, err
	}
	return &faultyBlob{Blob: b, area: f}, nil
}

// Released returns the ids of blobs whose release was attempted.
func (f *FaultyStagingArea) Released() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

type faultyBlob struct {
	drive.Blob
	area *FaultyStagingArea
}

func (b *faultyBlob) Release() error {
	b.area.mu.Lock()
	b.area.released = append(b.area.released, b.ID())
	b.area.mu.Unlock()
	b.Blob.Release()
	return ErrStubRelease
}
