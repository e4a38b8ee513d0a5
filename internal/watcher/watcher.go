package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// DefaultDebounce is how long the tree must be quiet before a burst of
// events is evaluated.
const DefaultDebounce = 2 * time.Second

// History is where drift entries are recorded and recent operations read.
type History interface {
	InsertOperation(op *store.Operation) error
	ListOperations(limit int) ([]*store.Operation, error)
}

// Watcher reports changes to an installation tree made outside of
// themeupdater.
type Watcher struct {
	root     string
	current  func(root string) string
	history  History
	locked   func() bool
	onDrift  func(op *store.Operation)
	debounce time.Duration
	now      func() time.Time
	logger   *zap.Logger

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool

	mu       sync.Mutex
	watched  map[string]struct{}
	pending  map[string]struct{}
	firstAt  time.Time
	baseline string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLockCheck reports whether an operation currently holds the
// installation lock.
func WithLockCheck(locked func() bool) Option {
	return func(w *Watcher) { w.locked = locked }
}

// WithOnDrift is called after each drift entry has been recorded.
func WithOnDrift(fn func(op *store.Operation)) Option {
	return func(w *Watcher) { w.onDrift = fn }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher for the installation at root. current reads the
// installed version.
func New(root string, current func(root string) string, history History, opts ...Option) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("installation root cannot be empty")
	}
	if history == nil {
		return nil, fmt.Errorf("history cannot be nil")
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		current:  current,
		history:  history,
		locked:   func() bool { return false },
		debounce: DefaultDebounce,
		now:      time.Now,
		logger:   zap.NewNop(),
		stopCh:   make(chan struct{}),
		watched:  make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start subscribes to the installation tree and begins watching.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	// The parent catches the installation being replaced or created.
	if err := os.MkdirAll(filepath.Dir(w.root), 0755); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to prepare installation parent: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.root)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.root), err)
	}

	w.mu.Lock()
	w.rewatch()
	w.baseline = w.current(w.root)
	w.mu.Unlock()

	w.started = true
	w.wg.Add(1)
	go w.run()

	w.logger.Info("drift watcher started", zap.String("root", w.root), zap.String("version", w.baseline))
	return nil
}

// Stop halts the watcher. Stopping a watcher that was never started is a
// no-op.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
		close(w.stopCh)
	}
	if !w.started {
		return nil
	}
	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev.Name) {
				continue
			}
			w.note(ev)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.flush()

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevant filters parent-directory events down to the installation root.
func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	return name == w.root || strings.HasPrefix(name, w.root+string(filepath.Separator))
}

func (w *Watcher) note(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		w.firstAt = w.now()
	}
	w.pending[ev.Name] = struct{}{}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addTree(ev.Name)
		}
	}
}

// flush evaluates a settled burst of events.
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := len(w.pending)
	w.pending = make(map[string]struct{})
	if changed == 0 {
		return
	}

	// The installation directory may have been swapped for a new one.
	w.rewatch()
	version := w.current(w.root)
	from := w.baseline
	w.baseline = version

	if w.managed() {
		w.logger.Debug("ignoring changes made by an operation", zap.Int("paths", changed))
		return
	}

	op := &store.Operation{
		ID:          uuid.NewString(),
		Kind:        store.KindDrift,
		InstallRoot: w.root,
		FromVersion: from,
		ToVersion:   version,
		Success:     true,
		Message:     fmt.Sprintf("%d paths changed outside of themeupdater", changed),
		StartedAt:   w.firstAt,
		FinishedAt:  w.now(),
	}
	if err := w.history.InsertOperation(op); err != nil {
		w.logger.Warn("failed to record drift", zap.Error(err))
		return
	}
	w.logger.Warn("installation drift detected",
		zap.String("root", w.root),
		zap.Int("paths", changed),
		zap.String("from_version", from),
		zap.String("to_version", version))

	if w.onDrift != nil {
		w.onDrift(op)
	}
}

// managed reports whether the current burst belongs to an operation:
// either one is running now or one finished within the debounce window.
func (w *Watcher) managed() bool {
	if w.locked() {
		return true
	}
	ops, err := w.history.ListOperations(1)
	if err != nil || len(ops) == 0 {
		return false
	}
	last := ops[0]
	if last.Kind == store.KindDrift {
		return false
	}
	return w.now().Sub(last.FinishedAt) <= 2*w.debounce
}

// rewatch drops every watch below the root and subscribes to the current
// tree again. Must be called with mu held.
func (w *Watcher) rewatch() {
	for dir := range w.watched {
		w.fsw.Remove(dir)
	}
	w.watched = make(map[string]struct{})
	w.addTree(w.root)
}

// addTree watches dir and every directory below it. Must be called with mu
// held.
func (w *Watcher) addTree(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := w.watched[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		w.watched[path] = struct{}{}
		return nil
	})
}
