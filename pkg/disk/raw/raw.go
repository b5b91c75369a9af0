package raw

import (
	"bufio"
	"io"
	"os"
)

// Raw is an uncompressed image file; positioned reads are safe for concurrent use
type Raw struct {
	f    *os.File
	size int64

	remove bool
}

func NewRaw(f *os.File) (*Raw, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &Raw{f: f, size: fi.Size()}, nil
}

// NewTemp wraps a temporary file that is deleted on Close
func NewTemp(f *os.File) (*Raw, error) {
	r, err := NewRaw(f)
	if err != nil {
		return nil, err
	}
	r.remove = true
	return r, nil
}

func (r *Raw) ReadAt(p []byte, off int64) (n int, err error) {
	return r.f.ReadAt(p, off)
}

func (r *Raw) Close() error {
	err := r.f.Close()
	if r.remove {
		if rerr := os.Remove(r.f.Name()); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (r *Raw) ReadFile(w *bufio.Writer, off int64, length int64) error {
	_, err := io.CopyN(w, io.NewSectionReader(r.f, off, length), length)
	return err
}

func (r *Raw) GetSize() uint64 {
	return uint64(r.size)
}

func (r *Raw) Name() string {
	return r.f.Name()
}
