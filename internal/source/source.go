// Package source provides the inbound side of a transfer: something the
// relay can read bytes from, with a declared size and a suggested name.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ProgressFunc receives the number of bytes read so far. It may be called
// from a goroutine other than the one running Fetch.
type ProgressFunc func(bytesSoFar int64)

// Source supplies content for one transfer. It knows nothing about storage
// or links.
type Source interface {
	// Name is the suggested file name.
	Name() string
	// Size is the declared size in bytes, 0 if unknown. It is advisory.
	Size() int64
	// Fetch writes the full content to the file at dst.
	Fetch(ctx context.Context, dst string, progress ProgressFunc) (int64, error)
}

// ReadError is an inbound stream failure. It is never retried.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read source %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsReadError reports whether err carries a ReadError.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}

var ErrInvalidSource = errors.New("invalid source")

// Open builds a Source from a reference: http(s) URLs are downloaded,
// s3://, gs:// and file:// URLs are read through the blob drivers, anything
// else is a local path.
func Open(ref string) (Source, error) {
	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return NewURLSource(ref, 0), nil
		case "s3", "gs":
			return NewBucketSource(ref)
		case "file":
			return NewFileSource(u.Path)
		}
	}
	if ref == "" {
		return nil, ErrInvalidSource
	}
	return NewFileSource(ref)
}

// copyToFile streams r into dst, reporting progress and stopping when ctx
// is done. Read failures become ReadError; write failures are local.
func copyToFile(ctx context.Context, name string, r io.Reader, dst string, progress ProgressFunc) (int64, error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("open staging file: %w", err)
	}

	cw := &countingWriter{w: f, progress: progress}
	_, err = io.Copy(cw, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()

	var we *writeError
	switch {
	case ctx.Err() != nil:
		return cw.n, ctx.Err()
	case errors.As(err, &we):
		return cw.n, fmt.Errorf("write staging file: %w", we.err)
	case err != nil:
		return cw.n, &ReadError{Source: name, Err: err}
	case closeErr != nil:
		return cw.n, fmt.Errorf("close staging file: %w", closeErr)
	}
	return cw.n, nil
}

// writeError marks failures on the staging side of the copy.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

func (e *writeError) Unwrap() error { return e.err }

type countingWriter struct {
	w        io.Writer
	n        int64
	progress ProgressFunc
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if c.progress != nil && n > 0 {
		c.progress(c.n)
	}
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "file"
	}
	return filepath.Base(p)
}
