package disk

import (
	"bufio"
	"fmt"
	"io"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheBlockSize is the chunk size used when none is configured
const DefaultCacheBlockSize = 64 * 1024

// Cached is a Device that keeps recently read chunks of another Device in an LRU cache
type Cached struct {
	dev       Device
	cache     *lru.Cache
	chunkSize int64
	size      int64
}

// NewCached wraps dev with an LRU cache of n chunks
func NewCached(dev Device, n, chunkSize int) (*Cached, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultCacheBlockSize
	}
	cache, err := lru.NewWithEvict(n, func(k interface{}, v interface{}) {
		log.Debugf("evicted chunk %d from device read cache", k)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device read cache: %w", err)
	}
	return &Cached{
		dev:       dev,
		cache:     cache,
		chunkSize: int64(chunkSize),
		size:      int64(dev.GetSize()),
	}, nil
}

func (c *Cached) chunk(idx int64) ([]byte, error) {
	if val, found := c.cache.Get(idx); found {
		return val.([]byte), nil
	}
	off := idx * c.chunkSize
	length := c.chunkSize
	if off+length > c.size {
		length = c.size - off
	}
	data, err := ReadExact(c.dev, off, int(length))
	if err != nil {
		return nil, err
	}
	c.cache.Add(idx, data)
	return data, nil
}

func (c *Cached) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	var n int
	for n < len(p) {
		pos := off + int64(n)
		if pos >= c.size {
			return n, io.EOF
		}
		data, err := c.chunk(pos / c.chunkSize)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], data[pos%c.chunkSize:])
	}
	return n, nil
}

func (c *Cached) ReadFile(w *bufio.Writer, off, length int64) error {
	_, err := io.CopyN(w, io.NewSectionReader(c, off, length), length)
	return err
}

func (c *Cached) GetSize() uint64 {
	return uint64(c.size)
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.dev.Close()
}
