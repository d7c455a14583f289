// Package fetch provides byte-producing collaborators for the loader.  The
// core consumes bytes through core.Fetcher and knows nothing about where
// they come from; network transport stays out of scope entirely.
package fetch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// Bytes serves sources from an in-memory map.  Useful for tests and for
// callers that already hold encoded bytes.
type Bytes struct {
	mu      sync.RWMutex
	sources map[string][]byte
}

// NewBytes returns an empty in-memory fetcher.
func NewBytes() *Bytes {
	return &Bytes{sources: make(map[string][]byte)}
}

// Set registers data under source.  The bytes are copied.
func (b *Bytes) Set(source string, data []byte) {
	b.mu.Lock()
	b.sources[source] = utils.CloneBytes(data)
	b.mu.Unlock()
}

func (b *Bytes) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "bytes.fetch", err)
	}
	b.mu.RLock()
	data, ok := b.sources[source]
	b.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryFetch, "bytes.fetch", apperrors.ErrFetchFailed)
	}
	return utils.CloneBytes(data), nil
}

// File reads sources as paths relative to a root directory.  MaxBytes > 0
// rejects files above the limit while reading, before the whole payload is
// buffered.
type File struct {
	Root     string
	MaxBytes int64
}

// NewFile returns a fetcher rooted at dir.
func NewFile(dir string) *File { return &File{Root: dir} }

func (f *File) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "file.fetch", err)
	}
	path := source
	if f.Root != "" {
		path = filepath.Join(f.Root, source)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "file.fetch", err)
	}
	defer fh.Close()

	var r io.Reader = fh
	if f.MaxBytes > 0 {
		r = &utils.LimitedReader{R: fh, Max: f.MaxBytes}
	}
	buf, err := utils.DrainReader(ctx, r, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "file.fetch", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}

var (
	_ core.Fetcher = (*Bytes)(nil)
	_ core.Fetcher = (*File)(nil)
)
