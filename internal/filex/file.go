// Package filex provides small filesystem helpers shared by the cache store
// and configuration code.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// EnsureSubDir creates dirName under the current working directory and
// returns its absolute path.
func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	return dir, nil
}

// WriteAtomic writes data to path via a temporary file in the same directory
// followed by a rename. A crash mid-write leaves either the previous file
// contents or no file, never a truncated one.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	committed = true
	return nil
}
