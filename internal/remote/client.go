// Package remote implements drive.RemoteFileService over the file server's
// HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"drive-go/internal/drive"
)

// TokenProvider returns the bearer token for a request.
type TokenProvider func(ctx context.Context) (string, error)

// maxDetail bounds how much of an error body is kept in a RemoteError.
const maxDetail = 512

// Client talks to the file server. It holds no state besides its
// configuration and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenProvider
	timeout    time.Duration
	logger     drive.Logger
}

var _ drive.RemoteFileService = (*Client)(nil)

// New creates a client for the server at baseURL.
// timeout bounds metadata calls; content downloads and uploads are bounded
// only by the caller's context. token may be nil for the auth endpoints.
func New(baseURL string, token TokenProvider, timeout time.Duration, logger drive.Logger) *Client {
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &Client{
		baseURL:    normalizeURL(baseURL),
		httpClient: &http.Client{},
		token:      token,
		timeout:    timeout,
		logger:     logger,
	}
}

// List returns the active files in server order.
func (c *Client) List(ctx context.Context) ([]drive.FileRecord, error) {
	return c.listFiles(ctx, "list", "/files", false)
}

// Search returns active files whose name contains term, ignoring case.
func (c *Client) Search(ctx context.Context, term string) ([]drive.FileRecord, error) {
	return c.listFiles(ctx, "search", "/files/search?q="+url.QueryEscape(term), false)
}

// ListTrash returns the trashed files.
func (c *Client) ListTrash(ctx context.Context) ([]drive.FileRecord, error) {
	return c.listFiles(ctx, "trash", "/files/trash", true)
}

func (c *Client) listFiles(ctx context.Context, op, path string, trashed bool) ([]drive.FileRecord, error) {
	var dtos []fileDTO
	if err := c.call(ctx, op, http.MethodGet, path, nil, &dtos, true); err != nil {
		return nil, err
	}
	out := make([]drive.FileRecord, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.record(trashed))
	}
	return out, nil
}

// FetchContent streams the content of a file. The body is not bounded by
// the client timeout.
func (c *Client) FetchContent(ctx context.Context, id string) (*drive.Content, error) {
	resp, err := c.send(ctx, "fetch", http.MethodGet, filePath(id, ""), nil, "", true)
	if err != nil {
		return nil, err
	}
	return &drive.Content{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func (c *Client) SoftDelete(ctx context.Context, id string) error {
	return c.call(ctx, "delete", http.MethodDelete, filePath(id, ""), nil, nil, true)
}

func (c *Client) Restore(ctx context.Context, id string) error {
	return c.call(ctx, "restore", http.MethodPatch, filePath(id, "/restore"), nil, nil, true)
}

func (c *Client) PermanentDelete(ctx context.Context, id string) error {
	return c.call(ctx, "purge", http.MethodDelete, filePath(id, "/permanent"), nil, nil, true)
}

func (c *Client) ToggleStar(ctx context.Context, id string) (bool, error) {
	var out struct {
		Starred bool `json:"starred"`
	}
	if err := c.call(ctx, "star", http.MethodPatch, filePath(id, "/star"), nil, &out, true); err != nil {
		return false, err
	}
	return out.Starred, nil
}

// call performs a JSON request under the client timeout. in and out may be
// nil; the response body is drained either way.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any, auth bool) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	contentType := ""
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		body, contentType = bytes.NewReader(buf), "application/json"
	}

	resp, err := c.send(ctx, op, method, path, body, contentType, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &drive.RemoteError{Op: op, Status: resp.StatusCode, Detail: "decoding response: " + err.Error(), Err: drive.ErrTransport}
	}
	return nil
}

// send performs one request and maps failures to *drive.RemoteError. On
// success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, op, method, path string, body io.Reader, contentType string, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, auth)
}

func (c *Client) do(req *http.Request, op string, auth bool) (*http.Response, error) {
	if auth && c.token != nil {
		token, err := c.token(req.Context())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, transportError(op, err)
	}
	c.logger.Debug("request", "op", op, "method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(op, resp)
	}
	return resp, nil
}

// statusError maps an HTTP status to the matching drive sentinel.
func statusError(op string, resp *http.Response) error {
	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = drive.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = drive.ErrNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		sentinel = drive.ErrValidation
	default:
		sentinel = drive.ErrTransport
	}
	return &drive.RemoteError{Op: op, Status: resp.StatusCode, Detail: readDetail(resp.Body), Err: sentinel}
}

func transportError(op string, err error) error {
	sentinel := drive.ErrTransport
	var mismatch *sizeMismatchError
	if errors.As(err, &mismatch) {
		sentinel = drive.ErrValidation
		err = mismatch
	}
	return &drive.RemoteError{Op: op, Detail: err.Error(), Err: sentinel}
}

// readDetail extracts FastAPI's {"detail": ...} message, or the raw body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxDetail))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}

func filePath(id, suffix string) string {
	return "/files/" + url.PathEscape(id) + suffix
}

// normalizeURL strips trailing slashes from the base URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
