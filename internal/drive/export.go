package drive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
)

// ExportSink is a destination that remote file content can be copied to.
type ExportSink interface {
	Name() string

	// Put stores the content read from r under key and returns where it
	// ended up. size is -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) (location string, err error)

	// ValidateSetup verifies that the sink is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// ExportResult describes a completed export.
type ExportResult struct {
	FileID   string
	Sink     string
	Location string
	Size     int64
	Checksum string // SHA-256 of the exported bytes, lowercase hex
}

// Export streams the content of file from remote into sink. The key is
// "<file id>/<file name>".
func Export(ctx context.Context, remote RemoteFileService, sink ExportSink, file FileRecord) (ExportResult, error) {
	if err := checkID(file.ID); err != nil {
		return ExportResult{}, err
	}
	content, err := remote.FetchContent(ctx, file.ID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("fetching %s: %w", file.ID, err)
	}
	defer content.Body.Close()

	name := path.Base(file.Name)
	if name == "." || name == "/" {
		name = file.ID
	}
	key := file.ID + "/" + name

	h := sha256.New()
	counter := &countingWriter{}
	body := io.TeeReader(content.Body, io.MultiWriter(h, counter))

	location, err := sink.Put(ctx, key, body, content.Size)
	if err != nil {
		return ExportResult{}, fmt.Errorf("exporting %s to %s: %w", file.ID, sink.Name(), err)
	}

	return ExportResult{
		FileID:   file.ID,
		Sink:     sink.Name(),
		Location: location,
		Size:     counter.n,
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
