package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File and directory permissions for persisted state.
const (
	filePerm = 0o600
	dirPerm  = 0o750
)

// WriteFileAtomic replaces path with data. The bytes go to a temp file in the
// same directory, which is synced and renamed over path, then the directory is
// synced. A crash leaves either the old or the new file, never a torn one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	err = writeAndSync(tmp, data)
	if err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("rename state file: %w", err)
	}

	return syncDir(dir)
}

func writeAndSync(f *os.File, data []byte) error {
	_, writeErr := f.Write(data)
	if writeErr == nil {
		writeErr = f.Chmod(filePerm)
	}

	if writeErr == nil {
		writeErr = f.Sync()
	}

	closeErr := f.Close()

	err := errors.Join(writeErr, closeErr)
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}

	syncErr := d.Sync()
	closeErr := d.Close()

	err = errors.Join(syncErr, closeErr)
	if err != nil {
		return fmt.Errorf("sync state dir: %w", err)
	}

	return nil
}
