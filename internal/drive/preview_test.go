package drive_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"drive-go/internal/drive"
	"drive-go/internal/staging"
	"drive-go/internal/testutil"
)

type openResults struct {
	mu     sync.Mutex
	counts map[string]int
	seen   chan string
}

func newOpenResults() *openResults {
	return &openResults{counts: make(map[string]int), seen: make(chan string, 16)}
}

func (r *openResults) record(result string) {
	r.mu.Lock()
	r.counts[result]++
	r.mu.Unlock()
	r.seen <- result
}

func (r *openResults) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[result]
}

func (r *openResults) await(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("no %q preview result observed", want)
		}
	}
}

func waitPreview(t *testing.T, m *drive.PreviewManager) drive.PreviewState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := m.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return st
}

// blockFetch makes fetches of id wait until the returned release func is
// called. entered is closed when the blocked fetch starts.
func blockFetch(remote *testutil.FakeRemote, id string) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	remote.SetHook(testutil.OpFetch, func(ctx context.Context, _ int, arg string) error {
		if arg == id {
			once.Do(func() { close(in) })
			<-gate
		}
		return nil
	})
	return in, func() { close(gate) }
}

func TestPreviewManager_Open(t *testing.T) {
	remote := testutil.NewFakeRemote()
	rec := remote.Add("readme.txt", []byte("hello preview"))
	area := testutil.NewTestStagingArea()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})

	if err := m.Open(context.Background(), rec.ID); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	st := waitPreview(t, m)

	if st.Phase != drive.PreviewReady {
		t.Fatalf("Phase = %s (err %v), want ready", st.Phase, st.Err)
	}
	if st.FileID != rec.ID {
		t.Errorf("FileID = %q, want %q", st.FileID, rec.ID)
	}
	if st.Handle == nil {
		t.Fatal("Handle = nil in ready state")
	}
	if st.Handle.Size != rec.Size {
		t.Errorf("Handle.Size = %d, want %d", st.Handle.Size, rec.Size)
	}
	if st.Handle.ContentType != rec.ContentType {
		t.Errorf("Handle.ContentType = %q, want %q", st.Handle.ContentType, rec.ContentType)
	}
	if st.Handle.Address == "" {
		t.Error("Handle.Address is empty")
	}
	if got := m.LiveHandles(); got != 1 {
		t.Errorf("LiveHandles() = %d, want 1", got)
	}

	m.Close()
	if got := m.LiveHandles(); got != 0 {
		t.Errorf("LiveHandles() after Close = %d, want 0", got)
	}
	if n, _ := area.Count(); n != 0 {
		t.Errorf("staging Count() after Close = %d, want 0", n)
	}
	if st := m.State(); st.Phase != drive.PreviewEmpty || st.Handle != nil {
		t.Errorf("State() after Close = %+v, want empty", st)
	}
}

func TestPreviewManager_OpenRejectsEmptyID(t *testing.T) {
	remote := testutil.NewFakeRemote()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: testutil.NewTestStagingArea()})

	if err := m.Open(context.Background(), ""); !errors.Is(err, drive.ErrValidation) {
		t.Fatalf("Open(\"\") error = %v, want ErrValidation", err)
	}
	if m.State().Phase != drive.PreviewEmpty {
		t.Errorf("Phase = %s, want empty", m.State().Phase)
	}
	if remote.Calls(testutil.OpFetch) != 0 {
		t.Error("remote called for empty id")
	}
}

func TestPreviewManager_NewerOpenWins(t *testing.T) {
	remote := testutil.NewFakeRemote()
	a := remote.Add("a.txt", []byte("first"))
	b := remote.Add("b.txt", []byte("second"))
	area := testutil.NewTestStagingArea()
	results := newOpenResults()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area, OnOpen: results.record})

	entered, release := blockFetch(remote, a.ID)
	ctx := context.Background()

	if err := m.Open(ctx, a.ID); err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	<-entered
	if got := m.State().Phase; got != drive.PreviewLoading {
		t.Fatalf("Phase while fetching = %s, want loading", got)
	}

	if err := m.Open(ctx, b.ID); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	st := waitPreview(t, m)
	if st.Phase != drive.PreviewReady || st.FileID != b.ID {
		t.Fatalf("State = %+v, want ready for %s", st, b.ID)
	}

	release()
	results.await(t, "discarded")

	st = m.State()
	if st.FileID != b.ID || st.Handle == nil || st.Handle.FileID != b.ID {
		t.Errorf("State after stale fetch = %+v, want handle for %s", st, b.ID)
	}
	if got := m.LiveHandles(); got != 1 {
		t.Errorf("LiveHandles() = %d, want 1", got)
	}
	if n, _ := area.Count(); n != 1 {
		t.Errorf("staging Count() = %d, want 1", n)
	}
	if got := results.count("ready"); got != 1 {
		t.Errorf("ready results = %d, want 1", got)
	}
}

func TestPreviewManager_ReopenReleasesPreviousHandle(t *testing.T) {
	remote := testutil.NewFakeRemote()
	a := remote.Add("a.txt", []byte("first"))
	b := remote.Add("b.txt", []byte("second"))
	area := testutil.NewTestStagingArea()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})
	ctx := context.Background()

	m.Open(ctx, a.ID)
	first := waitPreview(t, m)
	m.Open(ctx, b.ID)
	second := waitPreview(t, m)

	if first.Handle == nil || second.Handle == nil {
		t.Fatalf("handles = %v, %v, want both set", first.Handle, second.Handle)
	}
	if first.Handle.ID == second.Handle.ID {
		t.Error("reopen reused the previous handle")
	}
	if n, _ := area.Count(); n != 1 {
		t.Errorf("staging Count() = %d, want 1", n)
	}
}

func TestPreviewManager_FetchFailure(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		rec := remote.Add("a.txt", []byte("a"))
		remote.FailWith(testutil.OpFetch, &drive.RemoteError{Op: "fetch", Err: drive.ErrTransport})
		results := newOpenResults()
		m := drive.NewPreviewManager(remote, drive.PreviewOptions{
			Staging: testutil.NewTestStagingArea(),
			OnOpen:  results.record,
		})

		m.Open(context.Background(), rec.ID)
		st := waitPreview(t, m)

		if st.Phase != drive.PreviewFailed {
			t.Fatalf("Phase = %s, want failed", st.Phase)
		}
		if !errors.Is(st.Err, drive.ErrTransport) {
			t.Errorf("Err = %v, want ErrTransport", st.Err)
		}
		if st.Handle != nil || m.LiveHandles() != 0 {
			t.Errorf("failed preview holds a handle: %+v", st.Handle)
		}
		results.await(t, "failed")
	})

	t.Run("unknown file", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: testutil.NewTestStagingArea()})

		m.Open(context.Background(), "file-404")
		st := waitPreview(t, m)
		if st.Phase != drive.PreviewFailed || !errors.Is(st.Err, drive.ErrNotFound) {
			t.Errorf("State = %+v, want failed with ErrNotFound", st)
		}
	})

	t.Run("staging full", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		rec := remote.Add("big.bin", bytes.Repeat([]byte("x"), 64))
		area := testutil.NewTestStagingAreaWithSize(16)
		m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})

		m.Open(context.Background(), rec.ID)
		st := waitPreview(t, m)
		if st.Phase != drive.PreviewFailed {
			t.Errorf("Phase = %s, want failed", st.Phase)
		}
		if n, _ := area.Count(); n != 0 {
			t.Errorf("staging Count() = %d, want 0", n)
		}
	})
}

func TestPreviewManager_CloseAndTeardown(t *testing.T) {
	remote := testutil.NewFakeRemote()
	rec := remote.Add("a.txt", []byte("a"))
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: testutil.NewTestStagingArea()})
	ctx := context.Background()

	// closing an empty manager is a no-op
	m.Close()
	m.Close()

	m.Open(ctx, rec.ID)
	waitPreview(t, m)
	m.Close()
	m.Close()
	if st := m.State(); st.Phase != drive.PreviewEmpty {
		t.Errorf("Phase after double Close = %s, want empty", st.Phase)
	}

	// the manager stays usable after Close
	if err := m.Open(ctx, rec.ID); err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}
	if st := waitPreview(t, m); st.Phase != drive.PreviewReady {
		t.Fatalf("Phase = %s, want ready", st.Phase)
	}

	m.Teardown()
	m.Teardown()
	if got := m.LiveHandles(); got != 0 {
		t.Errorf("LiveHandles() after Teardown = %d, want 0", got)
	}
	if err := m.Open(ctx, rec.ID); !errors.Is(err, drive.ErrClosed) {
		t.Errorf("Open() after Teardown error = %v, want ErrClosed", err)
	}
}

func TestPreviewManager_TeardownRacingOpen(t *testing.T) {
	remote := testutil.NewFakeRemote()
	rec := remote.Add("a.txt", []byte("a"))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		area := testutil.NewTestStagingArea()
		m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := m.Open(ctx, rec.ID); err != nil && !errors.Is(err, drive.ErrClosed) {
				t.Errorf("Open() error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			m.Teardown()
		}()
		wg.Wait()

		if st := waitPreview(t, m); st.Phase != drive.PreviewEmpty {
			t.Fatalf("iteration %d: Phase after Teardown = %s, want empty", i, st.Phase)
		}
		if got := m.LiveHandles(); got != 0 {
			t.Fatalf("iteration %d: LiveHandles() = %d, want 0", i, got)
		}
		if count, _ := area.Count(); count != 0 {
			t.Fatalf("iteration %d: staged blobs = %d, want 0", i, count)
		}
	}
}

func TestPreviewManager_SettledFetchContextIsCancelled(t *testing.T) {
	remote := testutil.NewFakeRemote()
	ok := remote.Add("ok.txt", []byte("ok"))
	bad := remote.Add("bad.txt", []byte("bad"))

	var mu sync.Mutex
	fetchCtx := make(map[string]context.Context)
	remote.SetHook(testutil.OpFetch, func(ctx context.Context, _ int, id string) error {
		mu.Lock()
		fetchCtx[id] = ctx
		mu.Unlock()
		if id == bad.ID {
			return &drive.RemoteError{Op: testutil.OpFetch, Err: drive.ErrTransport}
		}
		return nil
	})
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: testutil.NewTestStagingArea()})
	defer m.Teardown()

	tests := []struct {
		id    string
		phase drive.PreviewPhase
	}{
		{ok.ID, drive.PreviewReady},
		{bad.ID, drive.PreviewFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if err := m.Open(context.Background(), tt.id); err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if st := waitPreview(t, m); st.Phase != tt.phase {
				t.Fatalf("Phase = %s, want %s", st.Phase, tt.phase)
			}
			mu.Lock()
			ctx := fetchCtx[tt.id]
			mu.Unlock()
			if ctx == nil {
				t.Fatal("fetch was not called")
			}
			if !errors.Is(ctx.Err(), context.Canceled) {
				t.Errorf("fetch context error = %v, want context.Canceled", ctx.Err())
			}
		})
	}
}

func TestPreviewManager_CloseWhileLoading(t *testing.T) {
	remote := testutil.NewFakeRemote()
	rec := remote.Add("a.txt", []byte("a"))
	area := testutil.NewTestStagingArea()
	results := newOpenResults()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area, OnOpen: results.record})

	entered, release := blockFetch(remote, rec.ID)
	m.Open(context.Background(), rec.ID)
	<-entered

	m.Close()
	if st := m.State(); st.Phase != drive.PreviewEmpty {
		t.Errorf("Phase after Close = %s, want empty", st.Phase)
	}

	release()
	results.await(t, "discarded")

	if st := m.State(); st.Phase != drive.PreviewEmpty || st.Handle != nil {
		t.Errorf("State after late fetch = %+v, want empty", st)
	}
	if got := m.LiveHandles(); got != 0 {
		t.Errorf("LiveHandles() = %d, want 0", got)
	}
	if n, _ := area.Count(); n != 0 {
		t.Errorf("staging Count() = %d, want 0", n)
	}
}

func TestPreviewManager_ReleaseFailureIsLogged(t *testing.T) {
	remote := testutil.NewFakeRemote()
	a := remote.Add("a.txt", []byte("first"))
	b := remote.Add("b.txt", []byte("second"))
	area := testutil.NewFaultyStagingArea()
	logger := testutil.NewRecordingLogger()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area, Logger: logger})
	ctx := context.Background()

	m.Open(ctx, a.ID)
	first := waitPreview(t, m)

	if err := m.Open(ctx, b.ID); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	if st := waitPreview(t, m); st.Phase != drive.PreviewReady || st.FileID != b.ID {
		t.Fatalf("State = %+v, want ready for %s", st, b.ID)
	}

	released := area.Released()
	if len(released) != 1 || released[0] != first.Handle.ID {
		t.Errorf("Released() = %v, want [%s]", released, first.Handle.ID)
	}

	var found bool
	for _, e := range logger.Entries("ERROR") {
		err, ok := e.Attr("error").(error)
		if ok && errors.Is(err, drive.ErrResourceRelease) && errors.Is(err, testutil.ErrStubRelease) {
			found = true
		}
	}
	if !found {
		t.Errorf("no ERROR entry wrapping ErrResourceRelease, got %v", logger.Entries(""))
	}
}

func TestPreviewManager_Decryption(t *testing.T) {
	enc := testutil.NewTestEncryptor()
	var sealed bytes.Buffer
	plain := []byte("quarterly numbers")
	if err := enc.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	dc, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	remote := testutil.NewFakeRemote()
	secret := remote.Add("numbers.txt.enc", sealed.Bytes())
	open := remote.Add("open.txt", []byte("not encrypted"))

	area, err := staging.NewFileSystemStagingArea(t.TempDir(), testutil.NewPrefixedIDGenerator("blob"), 1<<20)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{
		Staging:     area,
		Decrypt:     dc.Decrypt,
		IsEncrypted: enc.IsEncrypted,
	})
	defer m.Teardown()
	ctx := context.Background()

	tests := []struct {
		id   string
		want []byte
	}{
		{secret.ID, plain},
		{open.ID, []byte("not encrypted")},
	}
	for _, tt := range tests {
		if err := m.Open(ctx, tt.id); err != nil {
			t.Fatalf("Open(%s) error = %v", tt.id, err)
		}
		st := waitPreview(t, m)
		if st.Phase != drive.PreviewReady {
			t.Fatalf("Open(%s) phase = %s (err %v), want ready", tt.id, st.Phase, st.Err)
		}
		got, err := os.ReadFile(st.Handle.Address)
		if err != nil {
			t.Fatalf("reading handle address: %v", err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("preview of %s = %q, want %q", tt.id, got, tt.want)
		}
		if st.Handle.Size != int64(len(tt.want)) {
			t.Errorf("Handle.Size = %d, want %d", st.Handle.Size, len(tt.want))
		}
	}
}

func TestWithPreview(t *testing.T) {
	remote := testutil.NewFakeRemote()
	rec := remote.Add("a.txt", []byte("scoped"))
	area := testutil.NewTestStagingArea()
	m := drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})
	ctx := context.Background()

	var seen drive.PreviewHandle
	err := drive.WithPreview(ctx, m, rec.ID, func(h drive.PreviewHandle) error {
		seen = h
		if got := m.LiveHandles(); got != 1 {
			t.Errorf("LiveHandles() inside fn = %d, want 1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithPreview() error = %v", err)
	}
	if seen.FileID != rec.ID {
		t.Errorf("handle FileID = %q, want %q", seen.FileID, rec.ID)
	}
	if got := m.LiveHandles(); got != 0 {
		t.Errorf("LiveHandles() after WithPreview = %d, want 0", got)
	}
	if n, _ := area.Count(); n != 0 {
		t.Errorf("staging Count() = %d, want 0", n)
	}
	if err := m.Open(ctx, rec.ID); !errors.Is(err, drive.ErrClosed) {
		t.Errorf("Open() after WithPreview error = %v, want ErrClosed", err)
	}

	newManager := func() *drive.PreviewManager {
		return drive.NewPreviewManager(remote, drive.PreviewOptions{Staging: area})
	}

	errBoom := errors.New("boom")
	err = drive.WithPreview(ctx, newManager(), rec.ID, func(drive.PreviewHandle) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Errorf("WithPreview() error = %v, want fn error", err)
	}

	err = drive.WithPreview(ctx, newManager(), "file-404", func(drive.PreviewHandle) error {
		t.Error("fn called for failed preview")
		return nil
	})
	if !errors.Is(err, drive.ErrNotFound) {
		t.Errorf("WithPreview() error = %v, want ErrNotFound", err)
	}
}

func TestPreviewPhase_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to drive.PreviewPhase
		want     bool
	}{
		{drive.PreviewEmpty, drive.PreviewLoading, true},
		{drive.PreviewEmpty, drive.PreviewReady, false},
		{drive.PreviewEmpty, drive.PreviewFailed, false},
		{drive.PreviewLoading, drive.PreviewReady, true},
		{drive.PreviewLoading, drive.PreviewFailed, true},
		{drive.PreviewLoading, drive.PreviewEmpty, true},
		{drive.PreviewLoading, drive.PreviewLoading, true},
		{drive.PreviewReady, drive.PreviewLoading, true},
		{drive.PreviewReady, drive.PreviewEmpty, true},
		{drive.PreviewReady, drive.PreviewFailed, false},
		{drive.PreviewFailed, drive.PreviewLoading, true},
		{drive.PreviewFailed, drive.PreviewReady, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}
