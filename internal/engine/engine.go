// Package engine runs the mutating operations on an installation: update
// from the repository, revert to the last backup, and manual backup
// management. Every operation holds the installation lock, reports one
// Result, and is recorded in the history.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/backup"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// BackupPolicy decides what an update does when the pre-update backup fails.
type BackupPolicy string

const (
	// PolicyContinue logs a warning and updates without a fresh backup.
	PolicyContinue BackupPolicy = "continue"
	// PolicyAbort fails the update.
	PolicyAbort BackupPolicy = "abort"
)

// ParseBackupPolicy validates a configured policy name.
func ParseBackupPolicy(s string) (BackupPolicy, error) {
	switch BackupPolicy(s) {
	case PolicyContinue, "":
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	}
	return "", fmt.Errorf("invalid backup failure policy %q (want continue or abort)", s)
}

// Installation is the live deployed tree.
type Installation struct {
	Root string
}

// Source locates the release archive and the component inside it.
type Source struct {
	ArchiveURL    string
	ComponentPath string
}

// VersionSource reads installed versions and owns the remote version cache.
type VersionSource interface {
	Current(root string) string
	Invalidate() error
}

// HistoryRecorder persists finished operations.
type HistoryRecorder interface {
	InsertOperation(op *store.Operation) error
}

// Observer is told about every finished operation.
type Observer interface {
	Observe(ctx context.Context, op *store.Operation)
}

// Result is the single outcome of an operation, suitable for display.
type Result struct {
	Success         bool           `json:"success"`
	Code            appErrors.Code `json:"code,omitempty"`
	Message         string         `json:"message"`
	Version         string         `json:"version,omitempty"`
	PreviousVersion string         `json:"previous_version,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	OperationID     string         `json:"operation_id"`
}

func success(msg string) Result {
	return Result{Success: true, Message: msg}
}

func failure(err error, msg string) Result {
	code := appErrors.CodeOf(err)
	if msg == "" {
		msg = err.Error()
	} else if err != nil {
		msg = msg + ": " + err.Error()
	}
	return Result{Code: code, Message: msg}
}

// Engine runs operations against one installation.
type Engine struct {
	inst        Installation
	source      Source
	backups     *backup.Store
	versions    VersionSource
	fetcher     remote.Fetcher
	locker      *Locker
	invalidator Invalidator
	history     HistoryRecorder
	observers   []Observer
	policy      BackupPolicy
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvalidator sets the compiled-code cache invalidator.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// WithHistory sets where finished operations are recorded.
func WithHistory(h HistoryRecorder) Option {
	return func(e *Engine) { e.history = h }
}

// WithObservers adds observers of finished operations.
func WithObservers(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// WithBackupPolicy sets the pre-update backup failure policy.
func WithBackupPolicy(p BackupPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(inst Installation, source Source, backups *backup.Store, versions VersionSource,
	fetcher remote.Fetcher, locker *Locker, opts ...Option) *Engine {
	e := &Engine{
		inst:     inst,
		source:   source,
		backups:  backups,
		versions: versions,
		fetcher:  fetcher,
		locker:   locker,
		policy:   PolicyContinue,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Installation returns the managed installation.
func (e *Engine) Installation() Installation {
	return e.inst
}

// Locked reports whether an operation currently holds the installation lock.
func (e *Engine) Locked() bool {
	return e.locker.Locked(e.inst.Root)
}

// run wraps an operation body with locking, panic recovery and recording.
func (e *Engine) run(ctx context.Context, kind string, body func(op *store.Operation) Result) (res Result) {
	op := &store.Operation{
		ID:          uuid.NewString(),
		Kind:        kind,
		InstallRoot: e.inst.Root,
		StartedAt:   e.now(),
	}
	log := e.logger.With(zap.String("op", kind), zap.String("operation_id", op.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("operation panicked", zap.Any("panic", r))
			res = Result{Code: appErrors.CodeUnknown, Message: fmt.Sprintf("%s failed: %v", kind, r)}
		}
		res.OperationID = op.ID
		e.finish(ctx, op, res)
	}()

	lock, err := e.locker.Acquire(e.inst.Root)
	if err != nil {
		log.Warn("installation is locked", zap.Error(err))
		return failure(err, "")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("failed to release lock", zap.Error(err))
		}
	}()

	return body(op)
}

func (e *Engine) finish(ctx context.Context, op *store.Operation, res Result) {
	op.FinishedAt = e.now()
	op.Success = res.Success
	op.Code = string(res.Code)
	op.Message = res.Message
	if res.Success && res.Version != "" {
		op.ToVersion = res.Version
	}

	if e.history != nil {
		if err := e.history.InsertOperation(op); err != nil {
			e.logger.Warn("failed to record operation", zap.String("operation_id", op.ID), zap.Error(err))
		}
	}
	for _, o := range e.observers {
		o.Observe(ctx, op)
	}

	fields := []zap.Field{
		zap.String("op", op.Kind),
		zap.String("operation_id", op.ID),
		zap.Bool("success", op.Success),
		zap.Duration("duration", op.Duration()),
	}
	if res.Success {
		e.logger.Info("operation finished", fields...)
	} else {
		e.logger.Warn("operation failed", append(fields, zap.String("code", op.Code), zap.String("message", op.Message))...)
	}
}

// afterMutation resets caches once the installation tree has changed.
// Failures here never fail the operation.
func (e *Engine) afterMutation(ctx context.Context, res *Result) {
	if e.invalidator != nil {
		if err := e.invalidator.Reset(ctx); err != nil {
			e.logger.Warn("compiled-code cache reset failed", zap.Error(err))
			res.Warnings = append(res.Warnings, "Cache reset failed: "+err.Error())
		}
	}
	if err := e.versions.Invalidate(); err != nil {
		e.logger.Warn("failed to invalidate version cache", zap.Error(err))
	}
}

func (e *Engine) installed() bool {
	info, err := os.Stat(e.inst.Root)
	return err == nil && info.IsDir()
}

// Backup replaces the backup slot with a snapshot of the installation.
func (e *Engine) Backup(ctx context.Context) Result {
	return e.run(ctx, store.KindBackup, func(op *store.Operation) Result {
		current := e.versions.Current(e.inst.Root)
		op.FromVersion = current

		b, err := e.backups.Create(ctx, e.inst.Root, current)
		if err != nil {
			return failure(err, "Backup failed")
		}
		res := success(fmt.Sprintf("Backup created (%s)", b.SizeLabel))
		res.Version = b.Version
		return res
	})
}

// DeleteBackup removes the backup slot.
func (e *Engine) DeleteBackup(ctx context.Context) Result {
	return e.run(ctx, store.KindDelete, func(op *store.Operation) Result {
		if b, ok := e.backups.Latest(); ok {
			op.FromVersion = b.Version
		}
		if err := e.backups.Delete(); err != nil {
			return failure(err, "")
		}
		return success("Backup deleted successfully")
	})
}
