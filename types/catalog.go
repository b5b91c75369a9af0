package types

import (
	"encoding/binary"
	"fmt"
	"os"
	"unicode/utf16"
)

/* Catalog */

const (
	// CatalogFolderSize is the on-disk size of CatalogFolder
	CatalogFolderSize = 88
	// CatalogFileSize is the on-disk size of CatalogFile
	CatalogFileSize = 248
	// CatalogThreadMinSize is a thread record with an empty name
	CatalogThreadMinSize = 10
	// CatalogKeyMinLength is a key with an empty name (parentID + name length)
	CatalogKeyMinLength = 6
	// ThreadKeyLength is the length of the canonical thread key
	ThreadKeyLength = 6
)

type UniStr255 struct {
	Length  uint16
	UniChar []uint16
}

// UniStr255FromString creates a UniStr255 from a Go string
func UniStr255FromString(s string) UniStr255 {
	chars := utf16.Encode([]rune(s))
	if len(chars) > 255 {
		chars = chars[:255]
	}
	return UniStr255{Length: uint16(len(chars)), UniChar: chars}
}

func (us *UniStr255) String() string {
	n := int(us.Length)
	if n > len(us.UniChar) {
		n = len(us.UniChar)
	}
	return string(utf16.Decode(us.UniChar[:n]))
}

// decodeUniStr255 reads a length-prefixed big-endian UTF-16 string
func decodeUniStr255(b []byte) (UniStr255, int, error) {
	if len(b) < 2 {
		return UniStr255{}, 0, fmt.Errorf("%w: missing name length", ErrShortKey)
	}
	length := binary.BigEndian.Uint16(b)
	end := 2 + 2*int(length)
	if len(b) < end {
		return UniStr255{}, 0, fmt.Errorf("%w: name needs %d bytes, have %d", ErrShortKey, end, len(b))
	}
	us := UniStr255{Length: length, UniChar: make([]uint16, length)}
	for i := range us.UniChar {
		us.UniChar[i] = binary.BigEndian.Uint16(b[2+2*i:])
	}
	return us, end, nil
}

func (us UniStr255) encode() []byte {
	out := make([]byte, 2+2*len(us.UniChar))
	binary.BigEndian.PutUint16(out, uint16(len(us.UniChar)))
	for i, c := range us.UniChar {
		binary.BigEndian.PutUint16(out[2+2*i:], c)
	}
	return out
}

type BSDInfo struct {
	OwnerID    uint32
	GroupID    uint32
	AdminFlags uint8
	OwnerFlags uint8
	FileMode   uint16
	// union {
	// UInt32  iNodeNum;
	// UInt32  linkCount;
	// UInt32  rawDevice;
	// } special;
	Special uint32
}

// RawDevice is the device number of a block or character special file
func (b BSDInfo) RawDevice() (uint32, bool) {
	switch b.FileMode & S_IFMT {
	case S_IFCHR, S_IFBLK:
		return b.Special, true
	}
	return 0, false
}

const (
	S_IFMT   = 0o170000
	S_IFIFO  = 0o010000
	S_IFCHR  = 0o020000
	S_IFDIR  = 0o040000
	S_IFBLK  = 0o060000
	S_IFREG  = 0o100000
	S_IFLNK  = 0o120000
	S_IFSOCK = 0o140000
	S_IFWHT  = 0o160000
)

// Mode converts the BSD file mode into an os.FileMode
func (b BSDInfo) Mode() os.FileMode {
	mode := os.FileMode(b.FileMode & 0o777)
	switch b.FileMode & S_IFMT {
	case S_IFDIR:
		mode |= os.ModeDir
	case S_IFLNK:
		mode |= os.ModeSymlink
	case S_IFIFO:
		mode |= os.ModeNamedPipe
	case S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case S_IFBLK:
		mode |= os.ModeDevice
	case S_IFSOCK:
		mode |= os.ModeSocket
	}
	return mode
}

type Rect struct {
	Top    int16
	Left   int16
	Bottom int16
	Right  int16
}

type Point struct {
	V int16
	H int16
}

type FolderInfo struct {
	WindowBounds  Rect // The position and dimension of the folder's window
	FinderFlags   uint16
	Location      Point // Folder's location in the parent folder. If set to {0, 0}, the Finder will place the item automatically
	ReservedField uint16
}

type ExtendedFinderFlags uint16

const (
	ExtendedFlagsAreInvalid    ExtendedFinderFlags = 0x8000 // The other extended flags should be ignored
	ExtendedFlagHasCustomBadge ExtendedFinderFlags = 0x0100 // The file or folder has a badge resource
	ExtendedFlagHasRoutingInfo ExtendedFinderFlags = 0x0004 // The file contains routing info resource
)

type ExtendedFolderInfo struct {
	ScrollPosition      Point // Scroll position (for icon views)
	Reserved1           int32
	ExtendedFinderFlags ExtendedFinderFlags
	Reserved2           int16
	PutAwayFolderID     int32
}

type FourCharCode uint32

func (c FourCharCode) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(c))
	return string(b)
}

type OSType = FourCharCode

const (
	/* Finder flags (finderFlags, fdFlags and frFlags) */
	IsOnDesk      = 0x0001 /* Files and folders (System 6) */
	Color         = 0x000E /* Files and folders */
	IsShared      = 0x0040 /* Files only (Applications only) */
	HasNoINITs    = 0x0080 /* Files only (Extensions/Control Panels only) */
	HasBeenInited = 0x0100 /* Files only */
	HasCustomIcon = 0x0400 /* Files and folders */
	IsStationery  = 0x0800 /* Files only */
	NameLocked    = 0x1000 /* Files and folders */
	HasBundle     = 0x2000 /* Files only */
	IsInvisible   = 0x4000 /* Files and folders */
	IsAlias       = 0x8000 /* Files only */
)

type FileInfo struct {
	FileType      OSType // The type of the file
	FileCreator   OSType // The file's creator
	FinderFlags   uint16
	Location      Point // File's location in the folder.
	ReservedField uint16
}

type ExtendedFileInfo struct {
	Reserved1           [4]int16
	ExtendedFinderFlags uint16
	Reserved2           int16
	PutAwayFolderID     int32
}

type RecordType int16

const (
	HFSPlusNoneRecord         RecordType = 0x0000
	HFSPlusFolderRecord       RecordType = 0x0001
	HFSPlusFileRecord         RecordType = 0x0002
	HFSPlusFolderThreadRecord RecordType = 0x0003
	HFSPlusFileThreadRecord   RecordType = 0x0004
)

func (rt RecordType) String() string {
	switch rt {
	case HFSPlusFolderRecord:
		return "Folder"
	case HFSPlusFileRecord:
		return "File"
	case HFSPlusFolderThreadRecord:
		return "FolderThread"
	case HFSPlusFileThreadRecord:
		return "FileThread"
	default:
		return fmt.Sprintf("Unknown (%d)", rt)
	}
}

// IsThread reports whether the tag belongs to a folder or file thread record
func (rt RecordType) IsThread() bool {
	return rt == HFSPlusFolderThreadRecord || rt == HFSPlusFileThreadRecord
}

type CatalogFolder struct {
	RecordType       RecordType
	Flags            uint16
	Valence          uint32
	FolderID         CatalogNodeID
	CreateDate       hfsTime
	ContentModDate   hfsTime
	AttributeModDate hfsTime
	AccessDate       hfsTime
	BackupDate       hfsTime
	Permissions      BSDInfo
	UserInfo         FolderInfo
	FinderInfo       ExtendedFolderInfo
	TextEncoding     uint32
	Reserved         uint32
}

const (
	HFSFileLockedMask     = 0x0001
	HFSThreadExistsMask   = 0x0002
	HFSHasAttributesMask  = 0x0004
	HFSHasSecurityMask    = 0x0008
	HFSHasFolderCountMask = 0x0010
	HFSHasLinkChainMask   = 0x0020
	HFSHasChildLinkMask   = 0x0040
	HFSHasDateAddedMask   = 0x0080
)

type CatalogFile struct {
	RecordType       RecordType
	Flags            uint16
	Reserved1        uint32
	FileID           CatalogNodeID
	CreateDate       hfsTime
	ContentModDate   hfsTime
	AttributeModDate hfsTime
	AccessDate       hfsTime
	BackupDate       hfsTime
	Permissions      BSDInfo
	UserInfo         FileInfo
	FinderInfo       ExtendedFileInfo
	TextEncoding     uint32
	Reserved2        uint32
	DataFork         ForkData
	ResourceFork     ForkData
}

// Finder type and creator codes of hard link and indirect node files
const (
	HardLinkFileType     OSType = 0x686C6E6B // 'hlnk'
	IndirectNodeFileType OSType = 0x694E6F64 // 'iNod'
	HFSPlusCreator       OSType = 0x6866732B // 'hfs+'
)

// IsHardLink reports whether f is a hard link pointing at an indirect node file
func (f *CatalogFile) IsHardLink() bool {
	return f.UserInfo.FileType == HardLinkFileType && f.UserInfo.FileCreator == HFSPlusCreator
}

// IsIndirectNode reports whether f is the indirect node file behind one or more hard links
func (f *CatalogFile) IsIndirectNode() bool {
	return f.UserInfo.FileType == IndirectNodeFileType && f.UserInfo.FileCreator == HFSPlusCreator
}

// INodeNum is the indirect node number a hard link points at
func (f *CatalogFile) INodeNum() (uint32, bool) {
	if !f.IsHardLink() {
		return 0, false
	}
	return f.Permissions.Special, true
}

// LinkCount is the number of hard links to an indirect node file
func (f *CatalogFile) LinkCount() (uint32, bool) {
	if !f.IsIndirectNode() {
		return 0, false
	}
	return f.Permissions.Special, true
}

func (f *CatalogFile) String() string {
	return fmt.Sprintf("fileID=%d, size=%d, rsrc=%d, mode=%s, modified=%s",
		f.FileID,
		f.DataFork.LogicalSize,
		f.ResourceFork.LogicalSize,
		f.Permissions.Mode(),
		f.ContentModDate,
	)
}

// CatalogThread links a CNID back to its parent and its own name
type CatalogThread struct {
	RecordType RecordType
	Reserved   int16
	ParentID   CatalogNodeID
	NodeName   UniStr255
}

// DecodeCatalogThread decodes a folder or file thread record (type tag included)
func DecodeCatalogThread(b []byte) (*CatalogThread, error) {
	if len(b) < CatalogThreadMinSize {
		return nil, fmt.Errorf("%w: thread record needs %d bytes, have %d", ErrShortRecord, CatalogThreadMinSize, len(b))
	}
	th := &CatalogThread{
		RecordType: RecordType(binary.BigEndian.Uint16(b[0:])),
		Reserved:   int16(binary.BigEndian.Uint16(b[2:])),
		ParentID:   CatalogNodeID(binary.BigEndian.Uint32(b[4:])),
	}
	name, _, err := decodeUniStr255(b[8:])
	if err != nil {
		return nil, fmt.Errorf("%w: thread name: %v", ErrShortRecord, err)
	}
	th.NodeName = name
	return th, nil
}

func (th *CatalogThread) String() string {
	return fmt.Sprintf("'%s' parent=%d, type=%s", &th.NodeName, th.ParentID, th.RecordType)
}

type CatalogKey struct {
	KeyLength uint16
	ParentID  CatalogNodeID
	NodeName  UniStr255
}

// DecodeCatalogKey decodes key bytes (without the leading key length)
func DecodeCatalogKey(key []byte) (*CatalogKey, error) {
	if len(key) < CatalogKeyMinLength {
		return nil, fmt.Errorf("%w: catalog key needs %d bytes, have %d", ErrShortKey, CatalogKeyMinLength, len(key))
	}
	name, _, err := decodeUniStr255(key[4:])
	if err != nil {
		return nil, err
	}
	return &CatalogKey{
		KeyLength: uint16(len(key)),
		ParentID:  CatalogNodeID(binary.BigEndian.Uint32(key)),
		NodeName:  name,
	}, nil
}

// Name returns the decoded node name
func (k *CatalogKey) Name() string {
	return k.NodeName.String()
}

func (k *CatalogKey) String() string {
	return fmt.Sprintf("parent=%d, name='%s'", k.ParentID, &k.NodeName)
}

// NewCatalogKey returns the key bytes (without the leading key length) for parent/name
func NewCatalogKey(parent CatalogNodeID, name string) []byte {
	us := UniStr255FromString(name)
	key := make([]byte, 4, 4+2+2*len(us.UniChar))
	binary.BigEndian.PutUint32(key, uint32(parent))
	return append(key, us.encode()...)
}

// ThreadKey returns the canonical key of the thread record for cnid: the CNID followed by an empty name
func ThreadKey(cnid CatalogNodeID) []byte {
	key := make([]byte, ThreadKeyLength)
	binary.BigEndian.PutUint32(key, uint32(cnid))
	return key
}
