package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

const (
	JIJournalInFSMask          = 0x00000001
	JIJournalOnOtherDeviceMask = 0x00000002
	JIJournalNeedInitMask      = 0x00000004
)

// JournalInfoBlockSize is the on-disk size of JournalInfoBlock
const JournalInfoBlockSize = 180

type JournalInfoBlock struct {
	Flags           uint32
	DeviceSignature [8]uint32
	Offset          uint64
	Size            uint64
	Reserved        [32]uint32
}

// ReadJournalInfoBlock decodes the journal info block at off
func ReadJournalInfoBlock(r io.ReaderAt, off int64) (*JournalInfoBlock, error) {
	buf := make([]byte, JournalInfoBlockSize)
	if n, err := r.ReadAt(buf, off); n != JournalInfoBlockSize {
		return nil, fmt.Errorf("%w: journal info block at %#x: %v", ErrShortRecord, off, err)
	}
	var jib JournalInfoBlock
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &jib); err != nil {
		return nil, fmt.Errorf("failed to read journal info block: %v", err)
	}
	return &jib, nil
}

func (j *JournalInfoBlock) InFS() bool {
	return j.Flags&JIJournalInFSMask != 0
}

func (j *JournalInfoBlock) OnOtherDevice() bool {
	return j.Flags&JIJournalOnOtherDeviceMask != 0
}

func (j *JournalInfoBlock) NeedInit() bool {
	return j.Flags&JIJournalNeedInitMask != 0
}

func (j *JournalInfoBlock) String() string {
	var flags []string
	if j.InFS() {
		flags = append(flags, "InFS")
	}
	if j.OnOtherDevice() {
		flags = append(flags, "OnOtherDevice")
	}
	if j.NeedInit() {
		flags = append(flags, "NeedInit")
	}
	if len(flags) == 0 {
		flags = append(flags, "None")
	}
	return fmt.Sprintf("flags=%s, offset=%#x, size=%d", strings.Join(flags, "|"), j.Offset, j.Size)
}
