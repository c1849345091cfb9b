package drive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// PreviewPhase is the state of a PreviewManager.
type PreviewPhase string

const (
	PreviewEmpty   PreviewPhase = "empty"
	PreviewLoading PreviewPhase = "loading"
	PreviewReady   PreviewPhase = "ready"
	PreviewFailed  PreviewPhase = "failed"
)

var previewTransitions = map[PreviewPhase][]PreviewPhase{
	PreviewEmpty:   {PreviewLoading},
	PreviewLoading: {PreviewLoading, PreviewReady, PreviewFailed, PreviewEmpty},
	PreviewReady:   {PreviewLoading, PreviewEmpty},
	PreviewFailed:  {PreviewLoading, PreviewEmpty},
}

// CanTransitionTo reports whether next is reachable from p.
func (p PreviewPhase) CanTransitionTo(next PreviewPhase) bool {
	for _, allowed := range previewTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PreviewHandle is a locally resolvable reference to fetched file content.
// Address stays valid until the manager releases the handle.
type PreviewHandle struct {
	ID          string
	FileID      string
	Address     string
	ContentType string
	Size        int64
}

// PreviewState is a snapshot of a PreviewManager.
// Handle is set only in PreviewReady and Err only in PreviewFailed.
type PreviewState struct {
	Phase  PreviewPhase
	FileID string
	Handle *PreviewHandle
	Err    error
}

// PreviewOptions configures a PreviewManager.
type PreviewOptions struct {
	// Staging holds the fetched content. Required.
	Staging StagingArea

	// Decrypt is applied to content for which IsEncrypted reports true.
	Decrypt     Transform
	IsEncrypted func(prefix []byte) bool

	// OnOpen is called once per Open with "ready", "failed" or "discarded".
	OnOpen func(result string)

	Logger Logger
}

// PreviewManager owns at most one live preview handle at a time.
//
// Opening a new file releases the current handle before the fetch starts.
// A fetch that completes after a newer Open or a Close has its resource
// released immediately and never becomes visible.
type PreviewManager struct {
	remote RemoteFileService
	opts   PreviewOptions
	logger Logger

	mu      sync.Mutex
	phase   PreviewPhase
	fileID  string
	handle  *PreviewHandle
	blob    Blob
	err     error
	gen     uint64
	cancel  context.CancelFunc
	settled chan struct{}
	closed  bool
}

// NewPreviewManager creates an empty manager.
func NewPreviewManager(remote RemoteFileService, opts PreviewOptions) *PreviewManager {
	m := &PreviewManager{
		remote: remote,
		opts:   opts,
		logger: orNop(opts.Logger),
		phase:  PreviewEmpty,
	}
	return m
}

// Open starts loading a preview of the file with the given id and returns
// without waiting for the fetch. Use Wait or State to observe the result.
func (m *PreviewManager) Open(ctx context.Context, fileID string) error {
	if err := checkID(fileID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.abortLocked()
	m.setPhase(PreviewLoading)
	m.fileID = fileID

	loadCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	settled := make(chan struct{})
	m.settled = settled

	go m.load(loadCtx, m.gen, fileID, settled)
	return nil
}

// Close releases the current handle, abandons any pending fetch and returns
// the manager to PreviewEmpty. Calling it again is a no-op.
func (m *PreviewManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Teardown closes the manager for good. Later Opens return ErrClosed.
func (m *PreviewManager) Teardown() {
	m.mu.Lock()
	m.closed = true
	m.closeLocked()
	m.mu.Unlock()
	m.logger.Debug("preview manager torn down")
}

func (m *PreviewManager) closeLocked() {
	if m.phase == PreviewEmpty {
		return
	}
	m.abortLocked()
	m.setPhase(PreviewEmpty)
	m.fileID = ""
}

// State returns the current state.
func (m *PreviewManager) State() PreviewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := PreviewState{Phase: m.phase, FileID: m.fileID, Err: m.err}
	if m.handle != nil {
		h := *m.handle
		st.Handle = &h
	}
	return st
}

// LiveHandles returns the number of unreleased handles owned by m: 0 or 1.
func (m *PreviewManager) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob != nil {
		return 1
	}
	return 0
}

// Wait blocks until the most recent Open has settled or ctx ends, and
// returns the state at that point.
func (m *PreviewManager) Wait(ctx context.Context) (PreviewState, error) {
	m.mu.Lock()
	settled := m.settled
	m.mu.Unlock()
	if settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
	return m.State(), nil
}

// abortLocked cancels the in-flight fetch, invalidates its generation and
// releases the live handle. m.mu must be held.
func (m *PreviewManager) abortLocked() {
	m.dropCancelLocked()
	m.gen++
	if m.blob != nil {
		m.release(m.blob)
		m.blob = nil
	}
	m.handle = nil
	m.err = nil
}

// dropCancelLocked releases the settled fetch's context. m.mu must be held.
func (m *PreviewManager) dropCancelLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *PreviewManager) setPhase(next PreviewPhase) {
	if !m.phase.CanTransitionTo(next) {
		m.logger.Error("invalid preview transition", "from", m.phase, "to", next)
	}
	m.phase = next
}

func (m *PreviewManager) release(b Blob) {
	if err := b.Release(); err != nil {
		m.logger.Error("releasing preview handle",
			"handle", b.ID(), "error", fmt.Errorf("%w: %w", ErrResourceRelease, err))
	}
}

func (m *PreviewManager) load(ctx context.Context, gen uint64, fileID string, settled chan struct{}) {
	defer close(settled)

	blob, contentType, err := m.fetch(ctx, fileID)

	m.mu.Lock()
	if gen != m.gen || m.closed {
		if m.closed && gen == m.gen {
			m.closeLocked()
		}
		m.mu.Unlock()
		if blob != nil {
			m.release(blob)
		}
		m.logger.Debug("discarding stale preview", "file_id", fileID)
		m.observe("discarded")
		return
	}
	if err != nil {
		m.err = err
		m.setPhase(PreviewFailed)
		m.dropCancelLocked()
		m.mu.Unlock()
		m.logger.Warn("preview failed", "file_id", fileID, "error", err)
		m.observe("failed")
		return
	}
	m.blob = blob
	m.handle = &PreviewHandle{
		ID:          blob.ID(),
		FileID:      fileID,
		Address:     blob.Address(),
		ContentType: contentType,
		Size:        blob.Size(),
	}
	m.setPhase(PreviewReady)
	m.dropCancelLocked()
	m.mu.Unlock()

	m.logger.Info("preview ready", "file_id", fileID, "address", blob.Address())
	m.observe("ready")
}

func (m *PreviewManager) fetch(ctx context.Context, fileID string) (Blob, string, error) {
	content, err := m.remote.FetchContent(ctx, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", fileID, err)
	}
	defer content.Body.Close()

	var tf Transform
	br := bufio.NewReader(content.Body)
	if m.opts.Decrypt != nil && m.opts.IsEncrypted != nil {
		prefix, _ := br.Peek(64)
		if m.opts.IsEncrypted(prefix) {
			tf = m.opts.Decrypt
		}
	}

	blob, err := spool(m.opts.Staging, fileID, readerCtx(ctx, br), tf)
	if err != nil {
		return nil, "", fmt.Errorf("storing preview of %s: %w", fileID, err)
	}
	return blob, content.ContentType, nil
}

func (m *PreviewManager) observe(result string) {
	if m.opts.OnOpen != nil {
		m.opts.OnOpen(result)
	}
}

// WithPreview opens fileID, waits for it and calls fn with the ready handle.
// The manager is torn down when fn returns, releasing the handle.
func WithPreview(ctx context.Context, m *PreviewManager, fileID string, fn func(PreviewHandle) error) error {
	if err := m.Open(ctx, fileID); err != nil {
		return err
	}
	defer m.Teardown()

	st, err := m.Wait(ctx)
	if err != nil {
		return err
	}
	switch {
	case st.Phase == PreviewFailed:
		return st.Err
	case st.Phase != PreviewReady || st.FileID != fileID:
		return ErrSuperseded
	}
	return fn(*st.Handle)
}

// readerCtx stops reads once ctx is done so a cancelled fetch does not
// keep filling the staging area.
func readerCtx(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
