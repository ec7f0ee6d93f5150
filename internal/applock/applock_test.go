package applock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// The lock file records the holder's pid.
	data, err := os.ReadFile(filepath.Join(dir, ".gtkbridge.lock"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Errorf("lock file contains %q, want pid %d", data, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestAcquireBusy(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(dir); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire = %v, want ErrBusy", err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Release()
}

func TestAcquireIndependentDirs(t *testing.T) {
	a, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()

	b, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	b.Release()
}

func TestAcquireMissingDir(t *testing.T) {
	if _, err := Acquire("/nonexistent/profile/dir"); err == nil {
		t.Fatal("Acquire succeeded in a missing directory")
	}
}
