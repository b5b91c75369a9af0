package disk

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/pkg/disk/raw"
	"github.com/dsnet/compress/bzip2"
	"github.com/dustin/go-humanize"
	"github.com/ulikunitz/xz"
)

// inflate decompresses a whole-image stream into a temporary file removed on Close
func inflate(in io.ReaderAt, typ ImageType, dir string) (Device, error) {
	src := io.NewSectionReader(in, 0, 1<<63-1)

	var r io.Reader
	switch typ {
	case XZ:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	case BZip2:
		br, err := bzip2.NewReader(src, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 reader: %w", err)
		}
		defer br.Close()
		r = br
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, typ)
	}

	tmp, err := os.CreateTemp(dir, "hfs-image-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to decompress image: %w", err)
	}

	log.WithFields(log.Fields{
		"path": tmp.Name(),
		"size": humanize.Bytes(uint64(n)),
	}).Debug("Inflated image")

	dev, err := raw.NewTemp(tmp)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	return dev, nil
}
