// Package app wires config, local state and the remote server into the
// operations behind each CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"drive-go/internal/config"
	"drive-go/internal/database"
	"drive-go/internal/drive"
	"drive-go/internal/encryption"
	"drive-go/internal/export"
	"drive-go/internal/fs"
	"drive-go/internal/metrics"
	"drive-go/internal/model"
	"drive-go/internal/remote"
	"drive-go/internal/session"
	"drive-go/internal/staging"
)

// pushTimeout bounds the metrics push done by Close.
const pushTimeout = 5 * time.Second

// Options control how a DriveApp is built.
type Options struct {
	// Operation names the CLI command (e.g. "upload") and Parameters its
	// arguments. Both end up in the operations table and the log.
	Operation  string
	Parameters string

	Verbose bool
	Stderr  io.Writer // defaults to os.Stderr
}

// DriveApp is the application layer between the CLI and the drive package.
// It builds every dependency from config and owns their lifecycle; the
// caller must call Close.
type DriveApp struct {
	cfg       *config.Config
	db        drive.Database
	session   *session.Manager
	remote    *remote.Client
	store     *drive.FileCollectionStore
	staging   drive.StagingArea
	encryptor drive.Encryptor
	resolver  *fs.Resolver
	metrics   *metrics.Metrics
	logger    drive.Logger
	clock     drive.Clock
	op        *Operation
	logFile   *os.File
}

// NewDriveApp creates a fully wired DriveApp from cfg.
func NewDriveApp(cfg *config.Config, opts Options) (*DriveApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, opts.Stderr, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	ids := drive.UUIDGenerator{}
	sa, err := staging.NewStagingAreaFromConfig(cfg.Staging, ids)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	clock := drive.RealClock{}
	sess := session.NewManager(db, cfg.ServerURL, clock, logger)
	client := remote.New(cfg.ServerURL, sess.Token, cfg.Timeout(), logger)

	return &DriveApp{
		cfg:       cfg,
		db:        db,
		session:   sess,
		remote:    client,
		store:     drive.NewFileCollectionStore(client, logger),
		staging:   sa,
		encryptor: enc,
		resolver:  fs.NewResolver(cfg.Filesystem.Ignore, logger),
		metrics:   metrics.New(),
		logger:    logger,
		clock:     clock,
		op:        NewOperation(opts.Operation, opts.Parameters),
		logFile:   logFile,
	}, nil
}

// track marks the current operation failed when err is set.
// It returns err unchanged.
func (a *DriveApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

func (a *DriveApp) begin() error {
	return a.op.persist(a.db)
}

// Register creates an account on the server.
func (a *DriveApp) Register(ctx context.Context, name, email, password string) error {
	if err := a.remote.Register(ctx, name, email, password); err != nil {
		return fmt.Errorf("registering %s: %w", email, err)
	}
	a.logger.Info("account registered", "email", email)
	return nil
}

// Login authenticates and stores the session for the configured server.
func (a *DriveApp) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if err := a.begin(); err != nil {
		return nil, err
	}
	sess, err := a.session.Init(ctx, a.remote, email, password)
	return sess, a.track(err)
}

// Logout forgets the stored session.
func (a *DriveApp) Logout() error {
	if err := a.begin(); err != nil {
		return err
	}
	return a.track(a.session.Teardown())
}

// Whoami reports the stored session without contacting the server.
func (a *DriveApp) Whoami() (session.Status, error) {
	return a.session.Status()
}

// List loads the files of scope, filtered by query in the active scope.
func (a *DriveApp) List(ctx context.Context, scope drive.Scope, query string) ([]drive.FileRecord, error) {
	return a.store.Load(ctx, scope, query)
}

// ToggleStar flips the star of an active file and returns the reloaded record.
func (a *DriveApp) ToggleStar(ctx context.Context, id string) (drive.FileRecord, error) {
	if err := a.begin(); err != nil {
		return drive.FileRecord{}, err
	}
	if err := a.track(a.store.ToggleStar(ctx, id)); err != nil {
		return drive.FileRecord{}, err
	}
	rec, ok := a.store.Find(id)
	if !ok {
		return drive.FileRecord{}, fmt.Errorf("%w: %s is not in the active list", drive.ErrNotFound, id)
	}
	return rec, nil
}

// Trash moves an active file to the trash.
func (a *DriveApp) Trash(ctx context.Context, id string) error {
	if err := a.begin(); err != nil {
		return err
	}
	return a.track(a.store.SoftDelete(ctx, id))
}

// Restore moves a trashed file back and reloads the trash view.
func (a *DriveApp) Restore(ctx context.Context, id string) error {
	if err := a.begin(); err != nil {
		return err
	}
	if _, err := a.store.Load(ctx, drive.ScopeTrash, ""); err != nil {
		return a.track(err)
	}
	return a.track(a.store.Restore(ctx, id))
}

// Purge permanently deletes a file.
func (a *DriveApp) Purge(ctx context.Context, id string) error {
	if err := a.begin(); err != nil {
		return err
	}
	if _, err := a.store.Load(ctx, drive.ScopeTrash, ""); err != nil {
		return a.track(err)
	}
	return a.track(a.store.PermanentDelete(ctx, id))
}

// UploadObserver receives every event of every task. Calls are serialized.
type UploadObserver func(task *drive.UploadTask, ev drive.UploadEvent)

// Upload resolves paths, uploads every file concurrently and waits for all
// tasks. Each terminal task is recorded in the upload history. The returned
// error is non-nil when at least one task failed; the snapshots describe
// every task either way.
func (a *DriveApp) Upload(ctx context.Context, paths []string, recursive bool, observe UploadObserver) ([]drive.UploadSnapshot, error) {
	files, err := a.resolver.Resolve(paths, recursive)
	if err != nil {
		return nil, a.track(err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to upload", drive.ErrValidation)
	}
	if err := a.begin(); err != nil {
		return nil, err
	}

	opts := drive.UploadOptions{
		OnComplete:  func(t *drive.UploadTask, _ drive.FileRecord) { a.recordUpload(t) },
		OnFailure:   func(t *drive.UploadTask, _ error) { a.recordUpload(t) },
		MaxParallel: a.cfg.Upload.MaxParallel,
		Logger:      a.logger,
		Clock:       a.clock,
	}
	if a.cfg.Upload.Encrypt {
		if !a.encryptor.IsConfigured() {
			return nil, a.track(fmt.Errorf("%w: encryption enabled but no keys found, run `drive keys init`", drive.ErrValidation))
		}
		opts.Transform = a.encryptor.Encrypt
		opts.NameSuffix = a.encryptor.Suffix()
		opts.Staging = a.staging
	}

	coord := drive.NewUploadCoordinator(a.remote, opts)
	tasks := coord.Enqueue(ctx, files)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range t.Updates() {
				if observe != nil {
					mu.Lock()
					observe(t, ev)
					mu.Unlock()
				}
			}
		}()
	}
	if err := coord.Wait(ctx); err != nil {
		return nil, a.track(err)
	}
	wg.Wait()

	snaps := make([]drive.UploadSnapshot, 0, len(tasks))
	failed := 0
	for _, t := range tasks {
		s := t.Snapshot()
		if s.Status == drive.UploadFailed {
			failed++
		}
		snaps = append(snaps, s)
	}

	if failed < len(tasks) {
		if _, err := a.store.Refresh(ctx); err != nil {
			a.logger.Warn("refreshing file list after upload", "error", err)
		}
	}
	if failed > 0 {
		return snaps, a.track(fmt.Errorf("%d of %d uploads failed", failed, len(tasks)))
	}
	return snaps, nil
}

func (a *DriveApp) recordUpload(t *drive.UploadTask) {
	s := t.Snapshot()
	rec := &model.UploadRecord{
		TaskID:      s.ID,
		OperationID: a.op.ID,
		Name:        s.Name,
		Size:        s.Size,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
		a.metrics.UploadFailed()
	}
	if s.Record != nil {
		rec.FileID = s.Record.ID
		rec.Size = s.Record.Size
		a.metrics.UploadSucceeded(s.Record.Size)
	}
	if err := a.db.RecordUpload(rec); err != nil {
		a.logger.Error("recording upload history", "task", s.ID, "error", err)
	}
}

// PassphraseFunc asks the user for the private key passphrase. It is only
// called when encrypted content has to be decrypted.
type PassphraseFunc func() (string, error)

// Preview fetches a file into the staging area, calls fn with the handle
// and releases it when fn returns. Encrypted content is decrypted with the
// private key unlocked by passphrase.
func (a *DriveApp) Preview(ctx context.Context, id string, passphrase PassphraseFunc, fn func(drive.PreviewHandle) error) error {
	opts := drive.PreviewOptions{
		Staging: a.staging,
		OnOpen:  a.metrics.PreviewOpened,
		Logger:  a.logger,
	}
	if a.encryptor.IsConfigured() && passphrase != nil {
		opts.IsEncrypted = a.encryptor.IsEncrypted
		opts.Decrypt = func(r io.Reader, w io.Writer) error {
			pass, err := passphrase()
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			dc, err := a.encryptor.Unlock(pass)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
			return dc.Decrypt(r, w)
		}
	}

	return drive.WithPreview(ctx, drive.NewPreviewManager(a.remote, opts), id, fn)
}

// Export copies the content of a file to the named export sink ("" for the
// first configured one) and records it.
func (a *DriveApp) Export(ctx context.Context, id, sinkName string) (drive.ExportResult, error) {
	sinkCfg, err := a.cfg.Export(sinkName)
	if err != nil {
		return drive.ExportResult{}, fmt.Errorf("%w: %v", drive.ErrValidation, err)
	}
	if err := a.begin(); err != nil {
		return drive.ExportResult{}, err
	}

	file, err := a.lookup(ctx, id)
	if err != nil {
		return drive.ExportResult{}, a.track(err)
	}

	sink, err := export.NewSinkFromConfig(ctx, sinkCfg)
	if err != nil {
		return drive.ExportResult{}, a.track(fmt.Errorf("creating export sink %s: %w", sinkCfg.Name, err))
	}

	res, err := drive.Export(ctx, a.remote, sink, file)
	a.metrics.Exported(sink.Name(), err)
	if err != nil {
		return drive.ExportResult{}, a.track(err)
	}

	rec := &model.ExportRecord{
		OperationID: a.op.ID,
		FileID:      res.FileID,
		FileName:    file.Name,
		Sink:        res.Sink,
		Location:    res.Location,
		Size:        res.Size,
		Checksum:    res.Checksum,
	}
	if err := a.db.RecordExport(rec); err != nil {
		a.logger.Error("recording export", "file_id", id, "error", err)
	}
	a.logger.Info("file exported", "file_id", id, "sink", res.Sink, "location", res.Location)
	return res, nil
}

// lookup finds a file by id in the active list, then in the trash. The
// server has no single-file metadata endpoint.
func (a *DriveApp) lookup(ctx context.Context, id string) (drive.FileRecord, error) {
	for _, scope := range []drive.Scope{drive.ScopeActive, drive.ScopeTrash} {
		if _, err := a.store.Load(ctx, scope, ""); err != nil {
			return drive.FileRecord{}, err
		}
		if rec, ok := a.store.Find(id); ok {
			return rec, nil
		}
	}
	return drive.FileRecord{}, fmt.Errorf("%w: no file with id %s", drive.ErrNotFound, id)
}

// History returns the most recent upload records, newest first.
func (a *DriveApp) History(limit int) ([]*model.UploadRecord, error) {
	return a.db.ListUploads(limit)
}

// ExportHistory returns the most recent exports, newest first.
func (a *DriveApp) ExportHistory(limit int) ([]*model.ExportRecord, error) {
	return a.db.ListExports(limit)
}

// Operations returns the most recent mutating commands, newest first.
func (a *DriveApp) Operations(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// InitKeys generates the encryption key pair. It refuses to replace
// existing keys.
func (a *DriveApp) InitKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	if strings.TrimSpace(passphrase) == "" {
		return fmt.Errorf("%w: passphrase must not be empty", drive.ErrValidation)
	}
	return a.encryptor.Setup(passphrase)
}

// Close records the operation result, pushes metrics when a Pushgateway is
// configured and releases every resource.
func (a *DriveApp) Close() error {
	var errs []error

	if err := a.op.finish(a.db); err != nil {
		errs = append(errs, err)
	}

	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		host, _ := os.Hostname()
		job := a.cfg.Metrics.Job
		if job == "" {
			job = "drive"
		}
		if err := a.metrics.Push(ctx, url, job, host); err != nil {
			a.logger.Warn("metrics push failed", "error", err)
		}
		cancel()
	}

	if c, ok := a.staging.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing staging area: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
