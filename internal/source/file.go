package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileSource reads a local file.
type FileSource struct {
	path string
	size int64
}

// NewFileSource stats path and records its size as the declared size.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("local path %s is a directory", path)
	}
	return &FileSource{path: path, size: info.Size()}, nil
}

func (s *FileSource) Name() string { return baseName(s.path) }

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) Fetch(ctx context.Context, dst string, progress ProgressFunc) (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, &ReadError{Source: s.path, Err: err}
	}
	defer f.Close()
	return copyToFile(ctx, s.path, f, dst, progress)
}

// ReaderSource adapts an arbitrary stream, such as a chat attachment body.
// It can be fetched once.
type ReaderSource struct {
	name string
	size int64
	r    io.Reader
}

// NewReaderSource wraps r with a declared size and suggested name.
func NewReaderSource(name string, size int64, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, size: size, r: r}
}

// NewStringSource is a ReaderSource over s.
func NewStringSource(name, s string) *ReaderSource {
	return NewReaderSource(name, int64(len(s)), strings.NewReader(s))
}

func (s *ReaderSource) Name() string { return s.name }

func (s *ReaderSource) Size() int64 { return s.size }

func (s *ReaderSource) Fetch(ctx context.Context, dst string, progress ProgressFunc) (int64, error) {
	return copyToFile(ctx, s.name, s.r, dst, progress)
}
