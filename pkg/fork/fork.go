package fork

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/types"
)

var (
	// ErrExtentOutOfBounds is returned when an extent ends past the end of the image
	ErrExtentOutOfBounds = errors.New("extent out of bounds")
	// ErrIncompleteCopy is returned when the extents run out before the logical size is reached
	ErrIncompleteCopy = errors.New("incomplete copy")
)

// streamBufferSize is the largest single read issued while streaming
const streamBufferSize = 1024 * 1024

// Source is the image a fork's extents point into
type Source interface {
	io.ReaderAt
	GetSize() uint64
}

// Fork is a fork's logical size and its extents in file order
type Fork struct {
	LogicalSize uint64
	Extents     []types.ExtentDescriptor
}

// FromForkData returns the active inline extents of fd followed by any overflow extents
func FromForkData(fd types.ForkData, overflow ...types.ExtentDescriptor) Fork {
	f := Fork{LogicalSize: fd.LogicalSize}
	for _, ext := range fd.Extents {
		if ext.Active() {
			f.Extents = append(f.Extents, ext)
		}
	}
	for _, ext := range overflow {
		if ext.Active() {
			f.Extents = append(f.Extents, ext)
		}
	}
	return f
}

// blockWriter is implemented by sources that can copy a byte range straight into a buffered writer
type blockWriter interface {
	ReadFile(w *bufio.Writer, off, length int64) error
}

// Reader reassembles forks from allocation blocks
type Reader struct {
	src       Source
	blockSize uint64
}

func NewReader(src Source, blockSize uint32) *Reader {
	return &Reader{
		src:       src,
		blockSize: uint64(blockSize),
	}
}

func (r *Reader) BlockSize() uint32 {
	return uint32(r.blockSize)
}

func (r *Reader) extentRange(ext types.ExtentDescriptor) (off, length uint64) {
	return uint64(ext.StartBlock) * r.blockSize, uint64(ext.BlockCount) * r.blockSize
}

func (r *Reader) checkExtent(ext types.ExtentDescriptor) error {
	off, length := r.extentRange(ext)
	if end, size := off+length, r.src.GetSize(); end > size {
		return fmt.Errorf("%w: blocks %d+%d end at byte %d, image is %d bytes",
			ErrExtentOutOfBounds, ext.StartBlock, ext.BlockCount, end, size)
	}
	return nil
}

// CheckBounds verifies that every active extent of fd lies inside the image
func (r *Reader) CheckBounds(fd types.ForkData) error {
	return r.CheckForkBounds(FromForkData(fd))
}

func (r *Reader) CheckForkBounds(f Fork) error {
	for _, ext := range f.Extents {
		if err := r.checkExtent(ext); err != nil {
			return err
		}
	}
	return nil
}

// Materialize returns exactly LogicalSize bytes of fd
func (r *Reader) Materialize(fd types.ForkData) ([]byte, error) {
	return r.MaterializeFork(FromForkData(fd))
}

// MaterializeFork copies each extent to the next unfilled offset of a LogicalSize buffer.
// The cursor advances by the whole extent; whatever does not fit is dropped.
func (r *Reader) MaterializeFork(f Fork) ([]byte, error) {
	if size := r.src.GetSize(); f.LogicalSize > size {
		return nil, fmt.Errorf("%w: logical size %d exceeds image size %d", ErrExtentOutOfBounds, f.LogicalSize, size)
	}

	buf := make([]byte, f.LogicalSize)

	var cursor uint64
	for _, ext := range f.Extents {
		if cursor >= f.LogicalSize {
			break
		}
		if err := r.checkExtent(ext); err != nil {
			return nil, err
		}
		off, length := r.extentRange(ext)
		if length > f.LogicalSize-cursor {
			length = f.LogicalSize - cursor
		}
		n, err := r.src.ReadAt(buf[cursor:cursor+length], int64(off))
		if uint64(n) != length {
			return nil, fmt.Errorf("failed to read extent at %#x: %w", off, shortRead(err))
		}
		cursor += length
	}

	if cursor < f.LogicalSize {
		log.Debugf("fork extents cover %d of %d bytes", cursor, f.LogicalSize)
	}

	return buf, nil
}

// Stream writes exactly LogicalSize bytes of fd to w, feeding the same bytes to h (if not nil)
func (r *Reader) Stream(fd types.ForkData, w io.Writer, h hash.Hash) (int64, error) {
	return r.StreamFork(FromForkData(fd), w, h)
}

func (r *Reader) StreamFork(f Fork, w io.Writer, h hash.Hash) (int64, error) {
	dst := w
	if h != nil {
		dst = io.MultiWriter(w, h)
	}

	var written uint64
	for _, ext := range f.Extents {
		if written >= f.LogicalSize {
			break
		}
		if err := r.checkExtent(ext); err != nil {
			return int64(written), err
		}
		off, length := r.extentRange(ext)
		if length > f.LogicalSize-written {
			length = f.LogicalSize - written
		}
		n, err := io.CopyBuffer(dst, io.NewSectionReader(r.src, int64(off), int64(length)), make([]byte, min(length, streamBufferSize)))
		written += uint64(n)
		if err != nil {
			return int64(written), fmt.Errorf("failed to stream extent at %#x: %w", off, err)
		}
		if uint64(n) != length {
			return int64(written), fmt.Errorf("failed to stream extent at %#x: %w", off, io.ErrUnexpectedEOF)
		}
	}

	if written < f.LogicalSize {
		return int64(written), fmt.Errorf("%w: wrote %d of %d bytes", ErrIncompleteCopy, written, f.LogicalSize)
	}

	return int64(written), nil
}

// ReadFile copies exactly LogicalSize bytes of fd to a buffered writer, flushing it afterwards.
// Each extent goes through the source's own ReadFile when it has one.
func (r *Reader) ReadFile(w *bufio.Writer, fd types.ForkData) error {
	dev, ok := r.src.(blockWriter)
	if !ok {
		if _, err := r.Stream(fd, w, nil); err != nil {
			return err
		}
		return w.Flush()
	}

	f := FromForkData(fd)

	var written uint64
	for _, ext := range f.Extents {
		if written >= f.LogicalSize {
			break
		}
		if err := r.checkExtent(ext); err != nil {
			return err
		}
		off, length := r.extentRange(ext)
		if length > f.LogicalSize-written {
			length = f.LogicalSize - written
		}
		if err := dev.ReadFile(w, int64(off), int64(length)); err != nil {
			return fmt.Errorf("failed to read extent at %#x: %w", off, shortRead(err))
		}
		written += length
	}

	if written < f.LogicalSize {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrIncompleteCopy, written, f.LogicalSize)
	}

	return w.Flush()
}

func shortRead(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
