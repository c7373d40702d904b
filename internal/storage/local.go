package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 100 * time.Millisecond

// Local stores the document in a single file on disk. A flock sidecar
// guards against concurrent writers from other processes; writes go
// through a temp file and rename so readers never see a torn document.
type Local struct {
	path     string
	fileLock *flock.Flock
}

// NewLocal creates a local backend for the file at path.
func NewLocal(path string) *Local {
	return &Local{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (l *Local) Path() string {
	return l.path
}

// Exists reports whether the backing file is present on disk.
func (l *Local) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Fetch reads the whole file, creating it empty first if absent.
func (l *Local) Fetch(ctx context.Context) ([]byte, error) {
	unlock, err := l.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", l.path, err)
	}
	defer f.Close()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", l.path, err)
	}
	return data, nil
}

// Overwrite atomically replaces the file's content.
func (l *Local) Overwrite(ctx context.Context, data []byte) error {
	unlock, err := l.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".notes-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("storage: rename %s to %s: %w", tmpName, l.path, err)
	}
	return nil
}

// Pretty reports indented output; the local file stays human-readable.
func (l *Local) Pretty() bool {
	return true
}

func (l *Local) lock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	locked, err := l.fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("storage: acquire lock for %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: could not acquire lock for %s", l.path)
	}
	return func() { _ = l.fileLock.Unlock() }, nil
}
