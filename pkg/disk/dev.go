package disk

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/pkg/disk/raw"
)

// Device is a disk device object
type Device interface {
	io.ReaderAt
	io.Closer
	ReadFile(w *bufio.Writer, off, length int64) error
	GetSize() uint64
}

// Config is the device configuration
type Config struct {
	// CacheBlocks is the number of chunks kept in the read cache (0 disables the cache)
	CacheBlocks int `mapstructure:"cache-blocks"`
	// CacheBlockSize is the size of a cached chunk
	CacheBlockSize int `mapstructure:"cache-block-size"`
	// TempDir is where compressed images are inflated
	TempDir string `mapstructure:"temp-dir"`
}

// Generic wraps any io.ReaderAt of a known size
type Generic struct {
	io.ReaderAt
	io.Closer

	size int64
}

// Open opens an image file, inflating compressed images into a temporary file first
func Open(in string, conf *Config) (Device, error) {
	if conf == nil {
		conf = &Config{}
	}

	f, err := os.Open(in)
	if err != nil {
		return nil, err
	}

	typ, err := Detect(f)
	if err != nil {
		// not compressed, so the volume header decoder gets to reject it
		log.WithError(err).Debugf("Treating %s as a raw image", in)
		typ = Raw
	}

	var dev Device
	switch typ {
	case Raw:
		dev, err = raw.NewRaw(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open raw image: %w", err)
		}
	case XZ, BZip2:
		log.WithFields(log.Fields{
			"image": in,
			"type":  typ,
		}).Debug("Inflating compressed image")
		dev, err = inflate(f, typ, conf.TempDir)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to inflate %s image: %w", typ, err)
		}
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, typ)
	}

	if conf.CacheBlocks > 0 {
		cached, err := NewCached(dev, conf.CacheBlocks, conf.CacheBlockSize)
		if err != nil {
			dev.Close()
			return nil, err
		}
		return cached, nil
	}

	return dev, nil
}

// NewGeneric wraps r as a Device of the given size
func NewGeneric(r io.ReaderAt, size int64) *Generic {
	g := &Generic{
		ReaderAt: r,
		size:     size,
	}
	if c, ok := r.(io.Closer); ok {
		g.Closer = c
	}
	return g
}

func (g *Generic) Close() error {
	if g.Closer == nil {
		return nil
	}
	return g.Closer.Close()
}

func (g *Generic) ReadFile(w *bufio.Writer, off, length int64) error {
	sr := io.NewSectionReader(g.ReaderAt, off, length)
	_, err := io.CopyN(w, sr, length)
	return err
}

func (g *Generic) GetSize() uint64 {
	return uint64(g.size)
}

// ReadExact reads exactly length bytes at off; a short read is io.ErrUnexpectedEOF
func ReadExact(r io.ReaderAt, off int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, off)
	if n == length {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("failed to read %d bytes at %#x (got %d): %w", length, off, n, err)
}
