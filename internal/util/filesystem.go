package util

import (
	"errors"
	"io/fs"
	"os"
)

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// RemoveFile deletes path, treating an already missing file as success.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
