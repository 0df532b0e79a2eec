// Package flock provides advisory file locking for cross-process
// coordination of live-log writes.
package flock

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// FileLock provides an exclusive advisory lock using flock(2).
type FileLock struct {
	path string
	file *os.File
}

// New creates a FileLock for the given path.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, err
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}

	l.file = f
	return true, nil
}

// Acquire retries TryLock until it succeeds or the timeout elapses.
func (l *FileLock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock %s: held by another process", l.path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	name := l.file.Name()
	l.file.Close()
	l.file = nil
	os.Remove(name)
	return nil
}
