//go:build windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	kberrors "codekb/internal/errors"
)

const lockFile = "rebuild.lock"

// Lock is a rebuild lock. On Windows it relies on O_EXCL creation.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the rebuild lock in stateDir without blocking.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	path := filepath.Join(stateDir, lockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, kberrors.New(kberrors.RebuildInProgress, "another codekb process is rebuilding this workspace", err)
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing PID to lock file: %w", err)
	}
	return &Lock{path: path, file: file}, nil
}

// Release drops the lock and removes the lock file. Safe on nil.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
}
