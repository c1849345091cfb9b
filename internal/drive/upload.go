package drive

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// UploadStatus is the lifecycle state of an UploadTask.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadInProgress UploadStatus = "in-progress"
	UploadSucceeded  UploadStatus = "succeeded"
	UploadFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s UploadStatus) Terminal() bool {
	return s == UploadSucceeded || s == UploadFailed
}

// UploadEvent is an immutable progress message for one task.
// Record is set on success and Err on failure.
type UploadEvent struct {
	TaskID   string
	Status   UploadStatus
	Progress int
	Record   *FileRecord
	Err      error
}

// UploadSnapshot is a point-in-time copy of a task's state.
type UploadSnapshot struct {
	ID         string
	Name       string
	Size       int64
	Status     UploadStatus
	Progress   int
	Record     *FileRecord
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// at most 101 distinct progress values, plus the in-progress and terminal events
const eventBuffer = 104

// UploadTask tracks one file upload. Its state is written only by the
// coordinator goroutine that owns it and is frozen once terminal.
type UploadTask struct {
	file    LocalFile
	updates chan UploadEvent
	done    chan struct{}

	mu   sync.Mutex
	snap UploadSnapshot
}

func newUploadTask(id string, file LocalFile, name string, now time.Time) *UploadTask {
	var size int64
	if file != nil {
		size = file.Size()
	}
	return &UploadTask{
		file:    file,
		updates: make(chan UploadEvent, eventBuffer),
		done:    make(chan struct{}),
		snap: UploadSnapshot{
			ID:        id,
			Name:      name,
			Size:      size,
			Status:    UploadPending,
			StartedAt: now,
		},
	}
}

// ID returns the task identifier.
func (t *UploadTask) ID() string { return t.snap.ID }

// Name returns the display name of the uploaded file.
func (t *UploadTask) Name() string { return t.snap.Name }

// Updates delivers the task's events in order. The channel is closed after
// the terminal event. Events are buffered; readers may start late.
func (t *UploadTask) Updates() <-chan UploadEvent { return t.updates }

// Done is closed once the task is terminal and its callback has returned.
func (t *UploadTask) Done() <-chan struct{} { return t.done }

// Snapshot returns the current state.
func (t *UploadTask) Snapshot() UploadSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *UploadTask) start() {
	t.mu.Lock()
	t.snap.Status = UploadInProgress
	ev := UploadEvent{TaskID: t.snap.ID, Status: UploadInProgress, Progress: t.snap.Progress}
	t.mu.Unlock()
	t.updates <- ev
}

// advance applies a progress report. Values are clamped to [0,100] and
// anything not above the current value is dropped.
func (t *UploadTask) advance(pct int) {
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	if t.snap.Status != UploadInProgress || pct <= t.snap.Progress {
		t.mu.Unlock()
		return
	}
	t.snap.Progress = pct
	ev := UploadEvent{TaskID: t.snap.ID, Status: UploadInProgress, Progress: pct}
	t.mu.Unlock()
	t.updates <- ev
}

func (t *UploadTask) finish(record *FileRecord, err error, now time.Time) UploadEvent {
	t.mu.Lock()
	if err != nil {
		t.snap.Status = UploadFailed
		t.snap.Err = err
	} else {
		t.snap.Status = UploadSucceeded
		t.snap.Record = record
	}
	t.snap.FinishedAt = now
	ev := UploadEvent{
		TaskID:   t.snap.ID,
		Status:   t.snap.Status,
		Progress: t.snap.Progress,
		Record:   record,
		Err:      err,
	}
	t.mu.Unlock()

	t.updates <- ev
	close(t.updates)
	return ev
}

// UploadOptions configures an UploadCoordinator. Zero values are usable.
type UploadOptions struct {
	// OnComplete is called once per succeeded task.
	OnComplete func(task *UploadTask, record FileRecord)
	// OnFailure is called once per failed task.
	OnFailure func(task *UploadTask, err error)

	// Transform rewrites file content before upload (client-side encryption).
	// It requires Staging, which holds the rewritten copy so its size is known.
	Transform  Transform
	NameSuffix string
	Staging    StagingArea

	// MaxParallel caps concurrently running uploads; 0 means no limit.
	// Waiting tasks stay pending.
	MaxParallel int64

	Logger Logger
	Clock  Clock
	IDs    IDGenerator
}

// UploadCoordinator runs uploads concurrently, one goroutine per task.
// A failing task never affects its siblings.
type UploadCoordinator struct {
	remote RemoteFileService
	opts   UploadOptions
	logger Logger
	clock  Clock
	ids    IDGenerator
	sem    *semaphore.Weighted

	mu    sync.Mutex
	tasks []*UploadTask
}

// NewUploadCoordinator creates a coordinator that uploads through remote.
func NewUploadCoordinator(remote RemoteFileService, opts UploadOptions) *UploadCoordinator {
	c := &UploadCoordinator{
		remote: remote,
		opts:   opts,
		logger: orNop(opts.Logger),
		clock:  opts.Clock,
		ids:    opts.IDs,
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}
	if c.ids == nil {
		c.ids = UUIDGenerator{}
	}
	if opts.MaxParallel > 0 {
		c.sem = semaphore.NewWeighted(opts.MaxParallel)
	}
	return c
}

// Enqueue creates one task per file and starts them. It returns immediately.
// ctx bounds the lifetime of every task started by this call.
func (c *UploadCoordinator) Enqueue(ctx context.Context, files []LocalFile) []*UploadTask {
	tasks := make([]*UploadTask, 0, len(files))
	for _, f := range files {
		tasks = append(tasks, newUploadTask(c.ids.New(), f, c.uploadName(f), c.clock.Now()))
	}

	c.mu.Lock()
	c.tasks = append(c.tasks, tasks...)
	c.mu.Unlock()

	for _, t := range tasks {
		go c.run(ctx, t)
	}
	return tasks
}

func (c *UploadCoordinator) uploadName(f LocalFile) string {
	if f == nil {
		return ""
	}
	if c.opts.Transform != nil {
		return f.Name() + c.opts.NameSuffix
	}
	return f.Name()
}

// Tasks returns the tasks that have not been pruned, in enqueue order.
func (c *UploadCoordinator) Tasks() []*UploadTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*UploadTask, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Prune drops terminal tasks from the visible set and returns how many
// were removed.
func (c *UploadCoordinator) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.tasks[:0]
	removed := 0
	for _, t := range c.tasks {
		if t.Snapshot().Status.Terminal() {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	c.tasks = kept
	return removed
}

// Wait blocks until every task known at call time is done, or ctx ends.
func (c *UploadCoordinator) Wait(ctx context.Context) error {
	for _, t := range c.Tasks() {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *UploadCoordinator) run(ctx context.Context, t *UploadTask) {
	defer close(t.done)

	record, err := c.execute(ctx, t)
	if err == nil {
		// the last reported value before success is always 100
		t.advance(100)
	}
	t.finish(record, err, c.clock.Now())

	if err != nil {
		c.logger.Error("upload failed", "task", t.ID(), "name", t.Name(), "error", err)
		if c.opts.OnFailure != nil {
			c.opts.OnFailure(t, err)
		}
		return
	}
	c.logger.Info("upload complete", "task", t.ID(), "name", t.Name(), "file_id", record.ID)
	if c.opts.OnComplete != nil {
		c.opts.OnComplete(t, *record)
	}
}

func (c *UploadCoordinator) execute(ctx context.Context, t *UploadTask) (*FileRecord, error) {
	if t.file == nil || t.Name() == "" {
		return nil, fmt.Errorf("%w: missing file or file name", ErrValidation)
	}
	if t.file.Size() < 0 {
		return nil, fmt.Errorf("%w: negative size for %s", ErrValidation, t.Name())
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for upload slot: %w", err)
		}
		defer c.sem.Release(1)
	}

	t.start()

	src, err := t.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrValidation, t.Name(), err)
	}
	defer src.Close()

	var body io.Reader = src
	size := t.file.Size()
	if c.opts.Transform != nil {
		blob, err := spool(c.opts.Staging, t.Name(), src, c.opts.Transform)
		if err != nil {
			return nil, fmt.Errorf("staging %s: %w", t.Name(), err)
		}
		defer func() {
			if err := blob.Release(); err != nil {
				c.logger.Warn("releasing staged upload", "task", t.ID(), "error", err)
			}
		}()
		rc, err := blob.Open()
		if err != nil {
			return nil, fmt.Errorf("opening staged upload: %w", err)
		}
		defer rc.Close()
		body, size = rc, blob.Size()
	}

	c.logger.Debug("upload started", "task", t.ID(), "name", t.Name(), "size", size)

	// Progress reports travel through a per-task channel to a single pump
	// goroutine; the task state has exactly one writer at any time.
	reports := make(chan int)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for pct := range reports {
			t.advance(pct)
		}
	}()

	record, err := c.remote.Upload(ctx, t.Name(), body, size, func(sent, total int64) {
		if total <= 0 {
			return
		}
		reports <- int(sent * 100 / total)
	})
	close(reports)
	<-pumped

	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", t.Name(), err)
	}
	return &record, nil
}
