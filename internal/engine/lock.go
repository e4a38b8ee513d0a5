package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

// staleGrace is how long an empty or unreadable lock file is assumed to
// belong to a process that is still writing it.
const staleGrace = 5 * time.Second

// Locker serializes mutating operations per installation. Within a process
// a mutex per installation root is used; across processes a lock file
// holding the owner's PID. Contention fails immediately with CodeBusy.
type Locker struct {
	dir string
	mus sync.Map // root -> *sync.Mutex
}

// Lock is a held installation lock.
type Lock struct {
	mu   *sync.Mutex
	path string
	once sync.Once
}

// NewLocker creates a Locker keeping lock files in dir.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir}
}

// Acquire takes the lock for the installation at root.
func (l *Locker) Acquire(root string) (*Lock, error) {
	key := lockKey(root)
	v, _ := l.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, appErrors.New(appErrors.CodeBusy, "another operation is already running for this installation", nil)
	}

	path, err := l.acquireFile(key)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	return &Lock{mu: mu, path: path}, nil
}

// Locked reports whether any process currently holds the lock for root.
func (l *Locker) Locked(root string) bool {
	pid, err := readPID(l.lockPath(lockKey(root)))
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Release drops the lock. It is safe to call more than once.
func (lk *Lock) Release() error {
	var err error
	lk.once.Do(func() {
		if rmErr := os.Remove(lk.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to remove lock file: %w", rmErr)
		}
		lk.mu.Unlock()
	})
	return err
}

func (l *Locker) acquireFile(key string) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", appErrors.New(appErrors.CodeIO, "failed to create lock directory", err)
	}
	path := l.lockPath(key)

	// Two attempts: the second follows removal of a stale lock file.
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return "", appErrors.New(appErrors.CodeIO, "failed to write lock file", firstErr(werr, cerr))
			}
			return path, nil
		}
		if !os.IsExist(err) {
			return "", appErrors.New(appErrors.CodeIO, "failed to create lock file", err)
		}

		pid, readErr := readPID(path)
		if readErr == nil && processAlive(pid) {
			return "", appErrors.New(appErrors.CodeBusy,
				fmt.Sprintf("another operation is already running (pid %d)", pid), nil)
		}
		if readErr != nil && recentlyCreated(path) {
			// The owner may not have written its PID yet.
			return "", appErrors.New(appErrors.CodeBusy, "another operation is starting", nil)
		}
		if err := reclaim(path, pid); err != nil {
			return "", err
		}
	}
	return "", appErrors.New(appErrors.CodeBusy, "lock file was recreated by another process", nil)
}

// reclaim moves a stale lock file aside under a name unique to this process
// and deletes it. If the moved file turns out to hold a different live PID,
// another process took the lock in between and it is put back.
func reclaim(path string, stalePID int) error {
	aside := fmt.Sprintf("%s.stale-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return appErrors.New(appErrors.CodeIO, "failed to move stale lock file", err)
	}
	defer os.Remove(aside)

	if pid, err := readPID(aside); err == nil && pid != stalePID && processAlive(pid) {
		// os.Link fails if yet another lock file appeared meanwhile.
		if err := os.Link(aside, path); err != nil && !os.IsExist(err) {
			return appErrors.New(appErrors.CodeIO, "failed to restore lock file", err)
		}
		return appErrors.New(appErrors.CodeBusy,
			fmt.Sprintf("another operation is already running (pid %d)", pid), nil)
	}
	return nil
}

// recentlyCreated reports whether the file at path was modified within the
// last few seconds.
func recentlyCreated(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < staleGrace
}

func (l *Locker) lockPath(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:8])+".lock")
}

func lockKey(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive checks for a process by sending signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
