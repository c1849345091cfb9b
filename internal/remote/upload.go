package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"drive-go/internal/drive"
)

// Upload sends r as the multipart field "file". The envelope is built up
// front so the request has an exact Content-Length and progress is reported
// as the file bytes are handed to the transport.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader, size int64, progress drive.ProgressFunc) (drive.FileRecord, error) {
	if name == "" {
		return drive.FileRecord{}, fmt.Errorf("%w: upload needs a file name", drive.ErrValidation)
	}
	if size < 0 {
		return drive.FileRecord{}, fmt.Errorf("%w: negative size for %s", drive.ErrValidation, name)
	}

	var head, tail bytes.Buffer
	mw := multipart.NewWriter(&head)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	h.Set("Content-Type", contentTypeFor(name))
	if _, err := mw.CreatePart(h); err != nil {
		return drive.FileRecord{}, fmt.Errorf("building upload envelope: %w", err)
	}
	// Close writes only the closing boundary; send it to tail.
	closer := multipart.NewWriter(&tail)
	if err := closer.SetBoundary(mw.Boundary()); err != nil {
		return drive.FileRecord{}, fmt.Errorf("building upload envelope: %w", err)
	}
	if err := closer.Close(); err != nil {
		return drive.FileRecord{}, fmt.Errorf("building upload envelope: %w", err)
	}

	file := &exactReader{r: r, want: size, progress: progress}
	body := io.MultiReader(&head, file, &tail)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", body)
	if err != nil {
		return drive.FileRecord{}, fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = int64(head.Len()) + size + int64(tail.Len())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "upload", true)
	if err != nil {
		return drive.FileRecord{}, err
	}
	defer resp.Body.Close()

	var dto fileDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return drive.FileRecord{}, &drive.RemoteError{Op: "upload", Status: resp.StatusCode, Detail: err.Error(), Err: drive.ErrTransport}
	}
	rec := dto.record(false)
	if rec.Name == "" {
		rec.Name = name
	}
	if rec.Size == 0 {
		rec.Size = size
	}
	return rec, nil
}

// exactReader reports progress and fails when r does not yield exactly
// want bytes.
type exactReader struct {
	r        io.Reader
	want     int64
	sent     int64
	progress drive.ProgressFunc
}

type sizeMismatchError struct {
	want, got int64
}

func (e *sizeMismatchError) Error() string {
	return fmt.Sprintf("file changed while uploading: expected %d bytes, read %d", e.want, e.got)
}

func (e *exactReader) Read(p []byte) (int, error) {
	if rest := e.want - e.sent; int64(len(p)) > rest+1 {
		// one extra byte detects a file that grew
		p = p[:rest+1]
	}
	n, err := e.r.Read(p)
	e.sent += int64(n)
	if e.sent > e.want {
		return 0, &sizeMismatchError{want: e.want, got: e.sent}
	}
	if n > 0 && e.progress != nil {
		e.progress(e.sent, e.want)
	}
	if err == io.EOF && e.sent < e.want {
		return n, &sizeMismatchError{want: e.want, got: e.sent}
	}
	return n, err
}

func contentTypeFor(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
