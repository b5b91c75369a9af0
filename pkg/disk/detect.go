package disk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/blacktop/go-hfs/types"
)

// ErrUnknownImage is returned when no supported image type is recognised
var ErrUnknownImage = errors.New("unknown image type")

type ImageType uint8

const (
	Unknown ImageType = iota
	Raw
	XZ
	BZip2
)

func (t ImageType) String() string {
	switch t {
	case Raw:
		return "raw"
	case XZ:
		return "xz"
	case BZip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

var (
	xzMagic    = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte("BZh")
)

func checkXZ(r io.ReaderAt) bool {
	magic := make([]byte, len(xzMagic))
	if _, err := r.ReadAt(magic, 0); err != nil {
		return false
	}
	return bytes.Equal(magic, xzMagic)
}

func checkBZip2(r io.ReaderAt) bool {
	magic := make([]byte, len(bzip2Magic)+1)
	if _, err := r.ReadAt(magic, 0); err != nil {
		return false
	}
	// block size digit '1'..'9'
	return bytes.Equal(magic[:3], bzip2Magic) && magic[3] >= '1' && magic[3] <= '9'
}

func checkHFS(r io.ReaderAt) bool {
	sig := make([]byte, 2)
	if _, err := r.ReadAt(sig, types.VolumeHeaderOffset); err != nil {
		return false
	}
	switch binary.BigEndian.Uint16(sig) {
	case types.HFSPlusSigWord, types.HFSXSigWord:
		return true
	}
	return false
}

// Detect identifies the image container
func Detect(r io.ReaderAt) (ImageType, error) {
	if checkXZ(r) {
		return XZ, nil
	} else if checkBZip2(r) {
		return BZip2, nil
	} else if checkHFS(r) {
		return Raw, nil
	}
	return Unknown, ErrUnknownImage
}
