package types

// reference: https://developer.apple.com/library/archive/technotes/tn/tn1150.html

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"strings"
	"time"

	"github.com/apex/log"
)

const (
	HFSPlusSigWord = 0x482B // "H+"
	HFSXSigWord    = 0x4858 // "HX"

	HFSPlusVersion = 4
	HFSXVersion    = 5
)

const (
	// PreambleSize is the reserved area in front of the volume header
	PreambleSize = 1024
	// VolumeHeaderOffset is where the primary volume header lives
	VolumeHeaderOffset = 1024
	// VolumeHeaderSize is the on-disk size of HFSPlusVolumeHeader
	VolumeHeaderSize = 512
)

const (
	/* Bits 0-6 are reserved */
	HFSVolumeHardwareLockBit     = 7
	HFSVolumeUnmountedBit        = 8
	HFSVolumeSparedBlocksBit     = 9
	HFSVolumeNoCacheRequiredBit  = 10
	HFSBootVolumeInconsistentBit = 11
	HFSCatalogNodeIDsReusedBit   = 12
	HFSVolumeJournaledBit        = 13
	/* Bit 14 is reserved */
	HFSVolumeSoftwareLockBit = 15
	/* Bits 16-31 are reserved */
)

type hfsAttributes uint32

func (attr hfsAttributes) isSet(bit uint) bool {
	return attr&(1<<bit) != 0
}

func (attr hfsAttributes) String() string {
	var flags []string
	if attr.isSet(HFSVolumeHardwareLockBit) {
		flags = append(flags, "HardwareLocked")
	}
	if attr.isSet(HFSVolumeUnmountedBit) {
		flags = append(flags, "Unmounted")
	}
	if attr.isSet(HFSVolumeSparedBlocksBit) {
		flags = append(flags, "SparedBlocks")
	}
	if attr.isSet(HFSVolumeNoCacheRequiredBit) {
		flags = append(flags, "NoCacheRequired")
	}
	if attr.isSet(HFSBootVolumeInconsistentBit) {
		flags = append(flags, "BootInconsistent")
	}
	if attr.isSet(HFSCatalogNodeIDsReusedBit) {
		flags = append(flags, "CNIDsReused")
	}
	if attr.isSet(HFSVolumeJournaledBit) {
		flags = append(flags, "Journaled")
	}
	if attr.isSet(HFSVolumeSoftwareLockBit) {
		flags = append(flags, "SoftwareLocked")
	}
	if len(flags) == 0 {
		return "None"
	}
	return strings.Join(flags, ", ")
}

// HFSEpochDelta is the number of seconds between 1904-01-01 and 1970-01-01
const HFSEpochDelta = 2082844800

type hfsTime uint32

func (t hfsTime) Time() time.Time {
	// The HFS+ epoch starts at January 1, 1904, GMT.
	return time.Unix(int64(t)-HFSEpochDelta, 0).UTC()
}

func (t hfsTime) String() string {
	if t == 0 {
		return "-"
	}
	return t.Time().Format(time.RFC1123)
}

type CatalogNodeID uint32

const (
	HFSRootParentID           CatalogNodeID = 1
	HFSRootFolderID           CatalogNodeID = 2
	HFSExtentsFileID          CatalogNodeID = 3
	HFSCatalogFileID          CatalogNodeID = 4
	HFSBadBlockFileID         CatalogNodeID = 5
	HFSAllocationFileID       CatalogNodeID = 6
	HFSStartupFileID          CatalogNodeID = 7
	HFSAttributesFileID       CatalogNodeID = 8
	HFSRepairCatalogFileID    CatalogNodeID = 14
	HFSBogusExtentFileID      CatalogNodeID = 15
	HFSFirstUserCatalogNodeID CatalogNodeID = 16
)

func (id CatalogNodeID) String() string {
	switch id {
	case HFSRootParentID:
		return "RootParent"
	case HFSRootFolderID:
		return "RootFolder"
	case HFSExtentsFileID:
		return "ExtentsFile"
	case HFSCatalogFileID:
		return "CatalogFile"
	case HFSBadBlockFileID:
		return "BadBlockFile"
	case HFSAllocationFileID:
		return "AllocationFile"
	case HFSStartupFileID:
		return "StartupFile"
	case HFSAttributesFileID:
		return "AttributesFile"
	case HFSRepairCatalogFileID:
		return "RepairCatalogFile"
	case HFSBogusExtentFileID:
		return "BogusExtentFile"
	default:
		return fmt.Sprintf("%d", uint32(id))
	}
}

// ExtentDescriptor is a run of contiguous allocation blocks
type ExtentDescriptor struct {
	StartBlock uint32
	BlockCount uint32
}

// Active reports whether the slot is in use (a zero block count marks an unused slot)
func (e ExtentDescriptor) Active() bool {
	return e.BlockCount != 0
}

// End returns the first allocation block past the extent
func (e ExtentDescriptor) End() uint64 {
	return uint64(e.StartBlock) + uint64(e.BlockCount)
}

type ExtentRecord [8]ExtentDescriptor

// ForkData describes a fork's logical size and its first eight extents
type ForkData struct {
	LogicalSize uint64
	ClumpSize   uint32
	TotalBlocks uint32
	Extents     ExtentRecord
}

// InlineBlocks sums the block counts of the inline extents
func (f *ForkData) InlineBlocks() uint64 {
	var total uint64
	for _, ext := range f.Extents {
		total += uint64(ext.BlockCount)
	}
	return total
}

// NeedsOverflow reports whether part of the fork lives in the extents overflow file
func (f *ForkData) NeedsOverflow() bool {
	return uint64(f.TotalBlocks) > f.InlineBlocks()
}

type VolumeHeader struct {
	Signature          uint16 // 'H+' or 'HX'
	Version            uint16 // 4 for HFS+ and 5 for HFSX
	Attributes         hfsAttributes
	LastMountedVersion [4]byte
	JournalInfoBlock   uint32
	CreateDate         hfsTime
	ModifyDate         hfsTime
	BackupDate         hfsTime
	CheckedDate        hfsTime
	FileCount          uint32
	FolderCount        uint32
	BlockSize          uint32
	TotalBlocks        uint32
	FreeBlocks         uint32
	NextAllocation     uint32
	RsrcClumpSize      uint32
	DataClumpSize      uint32
	NextCatalogID      CatalogNodeID
	WriteCount         uint32
	EncodingsBitmap    uint64
	FinderInfo         [8]uint32
	AllocationFile     ForkData
	ExtentsFile        ForkData
	CatalogFile        ForkData
	AttributesFile     ForkData
	StartupFile        ForkData
}

// ReadVolumeHeader decodes the primary volume header of an HFS+ or HFSX image.
// A non-zero preamble is logged and otherwise ignored.
func ReadVolumeHeader(r io.ReaderAt) (*VolumeHeader, error) {
	preamble := make([]byte, PreambleSize)
	if n, err := r.ReadAt(preamble, 0); n != PreambleSize {
		return nil, fmt.Errorf("%w: failed to read preamble: %v", ErrMalformedHeader, err)
	}
	if !isZero(preamble) {
		log.Warn("some bytes in the volume preamble are non-zero, ignoring")
	}

	buf := make([]byte, VolumeHeaderSize)
	if n, err := r.ReadAt(buf, VolumeHeaderOffset); n != VolumeHeaderSize {
		return nil, fmt.Errorf("%w: short read (%d of %d bytes): %v", ErrMalformedHeader, n, VolumeHeaderSize, err)
	}

	var hdr VolumeHeader
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	if hdr.Signature != HFSPlusSigWord && hdr.Signature != HFSXSigWord {
		return nil, fmt.Errorf("%w: invalid signature %#04x", ErrMalformedHeader, hdr.Signature)
	}
	if hdr.BlockSize == 0 || bits.OnesCount32(hdr.BlockSize) != 1 {
		return nil, fmt.Errorf("%w: block size %d is not a power of two", ErrMalformedHeader, hdr.BlockSize)
	}

	return &hdr, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// IsHFSX reports whether the volume is the case-sensitive variant
func (hdr *VolumeHeader) IsHFSX() bool {
	return hdr.Signature == HFSXSigWord
}

func (hdr *VolumeHeader) Journaled() bool {
	return hdr.Attributes.isSet(HFSVolumeJournaledBit)
}

func (hdr *VolumeHeader) Unmounted() bool {
	return hdr.Attributes.isSet(HFSVolumeUnmountedBit)
}

// Size returns the volume size in bytes
func (hdr *VolumeHeader) Size() uint64 {
	return uint64(hdr.BlockSize) * uint64(hdr.TotalBlocks)
}

func (hdr *VolumeHeader) String() string {
	var sig string
	switch hdr.Signature {
	case HFSPlusSigWord:
		sig = "H+"
	case HFSXSigWord:
		sig = "HX"
	default:
		sig = fmt.Sprintf("%x", hdr.Signature)
	}
	return fmt.Sprintf(
		"Signature:          %s\n"+
			"Version:            %d\n"+
			"Attributes:         %s\n"+
			"LastMountedVersion: %s\n"+
			"CreateDate:         %s\n"+
			"ModifyDate:         %s\n"+
			"BackupDate:         %s\n"+
			"CheckedDate:        %s\n"+
			"Files:              %d\n"+
			"Folders:            %d\n"+
			"BlockSize:          %d\n"+
			"TotalBlocks:        %d\n"+
			"FreeBlocks:         %d\n",
		sig,
		hdr.Version,
		hdr.Attributes.String(),
		string(hdr.LastMountedVersion[:]),
		hdr.CreateDate.String(),
		hdr.ModifyDate.String(),
		hdr.BackupDate.String(),
		hdr.CheckedDate.String(),
		hdr.FileCount,
		hdr.FolderCount,
		hdr.BlockSize,
		hdr.TotalBlocks,
		hdr.FreeBlocks,
	)
}
