package fetch

import (
	"context"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
)

// Caching wraps another fetcher with a zstd-compressed in-memory byte cache.
// Encoded image bytes compress poorly on their own but thumbnails, QOI, and
// raw sources do not, and compressing keeps the cache budget honest either
// way.  Concurrent fetches for the same source are deduplicated with
// singleflight so a cache-miss storm produces one upstream fetch.
type Caching struct {
	inner core.Fetcher

	mu       sync.Mutex
	entries  map[string][]byte // zstd-compressed
	sizes    map[string]int64
	total    int64
	maxBytes int64

	group   singleflight.Group
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCaching wraps inner with a compressed cache bounded to maxBytes of
// compressed payload.  maxBytes <= 0 means unbounded.
func NewCaching(inner core.Fetcher, maxBytes int64) (*Caching, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCache, "caching.init", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCache, "caching.init", err)
	}
	return &Caching{
		inner:    inner,
		entries:  make(map[string][]byte),
		sizes:    make(map[string]int64),
		maxBytes: maxBytes,
		encoder:  enc,
		decoder:  dec,
	}, nil
}

func (c *Caching) Fetch(ctx context.Context, source string) ([]byte, error) {
	if data, ok := c.get(source); ok {
		return data, nil
	}

	ch := c.group.DoChan(source, func() (interface{}, error) {
		data, err := c.inner.Fetch(context.WithoutCancel(ctx), source)
		if err != nil {
			return nil, err
		}
		c.put(source, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "caching.fetch", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Caching) get(source string) ([]byte, bool) {
	c.mu.Lock()
	compressed, ok := c.entries[source]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	data, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt entry: drop it and treat as a miss.
		c.drop(source)
		return nil, false
	}
	return data, true
}

func (c *Caching) put(source string, data []byte) {
	compressed := c.encoder.EncodeAll(data, nil)
	size := int64(len(compressed))
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sizes[source]; ok {
		c.total -= old
	}
	c.entries[source] = compressed
	c.sizes[source] = size
	c.total += size

	// Evict arbitrary entries until back under budget.  Encoded sources are
	// re-fetchable, so eviction order only affects hit rate, not correctness.
	if c.maxBytes > 0 {
		for key := range c.entries {
			if c.total <= c.maxBytes {
				break
			}
			if key == source {
				continue
			}
			c.total -= c.sizes[key]
			delete(c.entries, key)
			delete(c.sizes, key)
		}
	}
}

func (c *Caching) drop(source string) {
	c.mu.Lock()
	if size, ok := c.sizes[source]; ok {
		c.total -= size
		delete(c.entries, source)
		delete(c.sizes, source)
	}
	c.mu.Unlock()
}

// Stats reports the number of cached sources and the compressed byte total.
func (c *Caching) Stats() (entries int, compressedBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.total
}

// String implements fmt.Stringer for debug logging.
func (c *Caching) String() string {
	n, b := c.Stats()
	return "fetch.Caching{entries=" + strconv.Itoa(n) + ", bytes=" + strconv.FormatInt(b, 10) + "}"
}

var _ core.Fetcher = (*Caching)(nil)
