package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
)

// LockFileName is the exclusive lock taken on a storage directory.
const LockFileName = ".lock"

// dirLock guards a storage directory against a second writer process.
type dirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newDirLock(dir string) *dirLock {
	path := filepath.Join(dir, LockFileName)
	return &dirLock{path: path, flock: flock.New(path)}
}

// acquire takes the lock without blocking. A held lock is ERR_207.
func (l *dirLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return docerrors.StorageError("create storage directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return docerrors.New(docerrors.ErrCodeStoreLocked,
			fmt.Sprintf("cannot lock %s", l.path), err)
	}
	if !acquired {
		return docerrors.New(docerrors.ErrCodeStoreLocked,
			fmt.Sprintf("storage directory %s is in use by another process", filepath.Dir(l.path)), nil).
			WithSuggestion("Stop the other docmemory process or use a different --storage directory")
	}

	l.locked = true
	return nil
}

// release is safe to call more than once.
func (l *dirLock) release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
