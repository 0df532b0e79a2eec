package flock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first := New(path)
	ok, err := first.TryLock()
	if err != nil {
		t.Fatalf("TryLock error: %v", err)
	}
	if !ok {
		t.Fatal("first TryLock should succeed")
	}

	second := New(path)
	ok, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock error: %v", err)
	}
	if ok {
		t.Fatal("second TryLock should be refused while held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock error: %v", err)
	}
	ok, err = second.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock after release = (%v, %v), want acquired", ok, err)
	}
	second.Unlock()
}

func TestUnlockRemovesLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := New(path)
	if ok, err := l.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = (%v, %v)", ok, err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file left behind after Unlock")
	}
	// Unlock twice is harmless.
	if err := l.Unlock(); err != nil {
		t.Errorf("second Unlock error: %v", err)
	}
}

func TestAcquireTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	holder := New(path)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = (%v, %v)", ok, err)
	}
	defer holder.Unlock()

	waiter := New(path)
	start := time.Now()
	err := waiter.Acquire(150 * time.Millisecond)
	if err == nil {
		t.Fatal("Acquire should time out while the lock is held")
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Error("Acquire returned before the timeout elapsed")
	}
}
