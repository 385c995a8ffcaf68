package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func TestFileSourceFetch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte(strings.Repeat("v", 4096)), 0644))

	s, err := NewFileSource(src)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", s.Name())
	assert.Equal(t, int64(4096), s.Size())

	var last int64
	dst := filepath.Join(dir, "staged")
	n, err := s.Fetch(context.Background(), dst, func(b int64) { last = b })
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
	assert.Equal(t, int64(4096), last)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, data, 4096)
}

func TestNewFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	_, err = NewFileSource(t.TempDir())
	assert.Error(t, err)
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection dropped")
	}
	n := min(len(p), f.after)
	f.after -= n
	return n, nil
}

func TestReaderSourceReadError(t *testing.T) {
	s := NewReaderSource("voice.ogg", 100, &failingReader{after: 10})
	n, err := s.Fetch(context.Background(), filepath.Join(t.TempDir(), "staged"), nil)
	assert.Equal(t, int64(10), n)
	assert.True(t, IsReadError(err))
}

func TestFetchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStringSource("a.txt", "hello")
	_, err := s.Fetch(ctx, filepath.Join(t.TempDir(), "staged"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsReadError(err))
}

func TestURLSourceFetch(t *testing.T) {
	body := strings.Repeat("a", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer srv.Close()

	s := NewURLSource(srv.URL+"/media/song.mp3", int64(len(body)))
	assert.Equal(t, "song.mp3", s.Name())

	var mu sync.Mutex
	var last int64
	dst := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.WriteFile(dst, nil, 0600))

	n, err := s.Fetch(context.Background(), dst, func(b int64) {
		mu.Lock()
		last = b
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, int64(len(body)), last)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestURLSourceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewURLSource(srv.URL+"/gone.mp4", 0)
	_, err := s.Fetch(context.Background(), filepath.Join(t.TempDir(), "staged"), nil)
	assert.True(t, IsReadError(err))
}

func TestBucketObjectSource(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	require.NoError(t, bucket.WriteAll(ctx, "in/photo.png", []byte("png-bytes"), nil))

	s := NewBucketObjectSource(bucket, "in/photo.png", 0)
	assert.Equal(t, "photo.png", s.Name())

	n, err := s.Fetch(ctx, filepath.Join(t.TempDir(), "staged"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, int64(9), s.Size())

	missing := NewBucketObjectSource(bucket, "in/none.png", 0)
	_, err = missing.Fetch(ctx, filepath.Join(t.TempDir(), "staged"), nil)
	assert.True(t, IsReadError(err))
}

func TestSplitObjectURL(t *testing.T) {
	bucketURL, key, err := splitObjectURL("s3://media/in/clip.mp4?region=us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://media?region=us-east-1", bucketURL)
	assert.Equal(t, "in/clip.mp4", key)

	_, _, err = splitObjectURL("gs://bucket-only")
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestOpen(t *testing.T) {
	s, err := Open("https://example.com/x/movie.mkv")
	require.NoError(t, err)
	assert.IsType(t, &URLSource{}, s)

	s, err = Open("gs://bucket/a/b.mp3")
	require.NoError(t, err)
	assert.IsType(t, &BucketSource{}, s)

	_, err = Open("")
	assert.Error(t, err)
}
