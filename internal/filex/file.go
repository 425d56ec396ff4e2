// Package filex contains filesystem helpers for the private vault directory.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// PrivateDirPerm is the most restrictive mode that still lets the owning
// process use the directory.
const PrivateDirPerm = 0o700

// EnsurePrivateDir creates dir (and parents) if needed and tightens its mode
// to PrivateDirPerm. It fails if dir exists but is not a directory.
func EnsurePrivateDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, PrivateDirPerm); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}

	// MkdirAll leaves existing directories alone and is subject to umask.
	if runtime.GOOS != "windows" && fi.Mode().Perm() != PrivateDirPerm {
		if err := os.Chmod(abs, PrivateDirPerm); err != nil {
			return "", fmt.Errorf("chmod %s: %w", abs, err)
		}
	}

	return abs, nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
