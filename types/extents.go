package types

import (
	"encoding/binary"
	"fmt"
)

/* Extents Overflow */

const (
	DataForkType     = 0x00
	ResourceForkType = 0xFF
)

const (
	// ExtentKeyLength is the value of ExtentKey.KeyLength
	ExtentKeyLength = 10
	// ExtentRecordSize is the on-disk size of ExtentRecord
	ExtentRecordSize = 64
)

// ExtentKey is the key of an Extents Overflow file leaf record
type ExtentKey struct {
	KeyLength  uint16
	ForkType   uint8
	Pad        uint8
	FileID     CatalogNodeID
	StartBlock uint32
}

func (k ExtentKey) String() string {
	fork := "data"
	if k.ForkType == ResourceForkType {
		fork = "rsrc"
	}
	return fmt.Sprintf("fileID=%d, fork=%s, start=%d", k.FileID, fork, k.StartBlock)
}

// DecodeExtentLeaf decodes an Extents Overflow leaf record (key length prefix included)
func DecodeExtentLeaf(raw []byte) (ExtentKey, ExtentRecord, error) {
	var (
		key ExtentKey
		rec ExtentRecord
	)
	if len(raw) < 2+ExtentKeyLength+ExtentRecordSize {
		return key, rec, fmt.Errorf("%w: extent leaf record needs %d bytes, have %d", ErrShortRecord, 2+ExtentKeyLength+ExtentRecordSize, len(raw))
	}
	key.KeyLength = binary.BigEndian.Uint16(raw)
	if key.KeyLength != ExtentKeyLength {
		return key, rec, fmt.Errorf("%w: unexpected extent key length %d", ErrShortKey, key.KeyLength)
	}
	key.ForkType = raw[2]
	key.Pad = raw[3]
	key.FileID = CatalogNodeID(binary.BigEndian.Uint32(raw[4:]))
	key.StartBlock = binary.BigEndian.Uint32(raw[8:])
	for i := range rec {
		off := 12 + 8*i
		rec[i] = ExtentDescriptor{
			StartBlock: binary.BigEndian.Uint32(raw[off:]),
			BlockCount: binary.BigEndian.Uint32(raw[off+4:]),
		}
	}
	return key, rec, nil
}
