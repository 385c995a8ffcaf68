// Package staging manages local scratch files that hold content between the
// inbound fetch and the storage upload.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

// Area is a directory holding staged artifacts.
type Area struct {
	dir string
}

// NewArea creates dir if needed.
func NewArea(dir string) (*Area, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string { return a.dir }

// Create allocates a new empty artifact. The name is only a hint; every
// artifact gets a unique path.
func (a *Area) Create(name string) (*Artifact, error) {
	path := filepath.Join(a.dir, uuid.NewString()+"-"+filepath.Base(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		util.RemoveFile(path)
		return nil, fmt.Errorf("close staging file: %w", err)
	}
	return &Artifact{Path: path}, nil
}

// Artifact is one staged file. Remove deletes it at most once.
type Artifact struct {
	Path string

	once    sync.Once
	err     error
	removed bool
}

// Remove deletes the file. Later calls return the first result.
func (a *Artifact) Remove() error {
	a.once.Do(func() {
		a.err = util.RemoveFile(a.Path)
		a.removed = a.err == nil
	})
	return a.err
}

// Removed reports whether Remove succeeded.
func (a *Artifact) Removed() bool {
	return a.removed
}

// Size returns the current size of the staged file.
func (a *Artifact) Size() (int64, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
