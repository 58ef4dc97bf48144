package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	ferrors "github.com/Iron-Ham/foreman/internal/errors"
)

// LockFileName is created inside the state directory.
const LockFileName = "foreman.lock"

// FileLock provides cross-process mutual exclusion using flock(2).
// It protects state files when a running coordinator and CLI commands
// touch the same state directory.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock for the given directory. Call Lock/Unlock
// to acquire and release.
func NewFileLock(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, LockFileName)}
}

// Lock acquires an exclusive lock, blocking until available.
// The directory and lock file are created if needed.
func (fl *FileLock) Lock() error {
	f, err := fl.open()
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

// TryLock attempts to acquire the lock without blocking. It returns
// ErrStateLocked when another descriptor holds the lock.
func (fl *FileLock) TryLock() error {
	f, err := fl.open()
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ferrors.ErrStateLocked
		}
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

func (fl *FileLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

// Unlock releases the lock and closes the lock file. Unlocking a lock that
// is not held is a no-op.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("funlock: %w", err)
	}
	return f.Close()
}

// WithLock runs fn while holding the directory lock.
func WithLock(dir string, fn func() error) error {
	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}
