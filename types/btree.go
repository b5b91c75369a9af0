package types

import "fmt"

/* B-tree */

const (
	// BTNodeDescriptorSize is the on-disk size of BTNodeDescriptor
	BTNodeDescriptorSize = 14
	// BTHeaderRecSize is the on-disk size of BTHeaderRec
	BTHeaderRecSize = 106
	// BTUserDataSize is the size of the header node's user data record
	BTUserDataSize = 128
	// BTHeaderReservedSize is the part of the header node in front of the map record
	BTHeaderReservedSize = 256

	BTMinNodeSize = 512
	BTMaxNodeSize = 32768
)

type BTreeNodeKind int8

const (
	BTLeafNodeKind   BTreeNodeKind = -1
	BTIndexNodeKind  BTreeNodeKind = 0
	BTHeaderNodeKind BTreeNodeKind = 1
	BTMapNodeKind    BTreeNodeKind = 2
)

func (kind BTreeNodeKind) String() string {
	switch kind {
	case BTLeafNodeKind:
		return "Leaf"
	case BTIndexNodeKind:
		return "Index"
	case BTHeaderNodeKind:
		return "Header"
	case BTMapNodeKind:
		return "Map"
	default:
		return fmt.Sprintf("Unknown (%d)", kind)
	}
}

type BTNodeDescriptor struct {
	FLink      uint32
	BLink      uint32
	Kind       BTreeNodeKind
	Height     uint8
	NumRecords uint16
	Reserved   uint16
}

type btreeType uint8

const (
	HFSBTreeType   btreeType = 0   // control file
	UserBTreeType  btreeType = 128 // user btree type starts from 128
	ReservedBTType btreeType = 255
)

const (
	BTBadCloseMask          = 0x00000001
	BTBigKeysMask           = 0x00000002
	BTVariableIndexKeysMask = 0x00000004
)

const (
	HFSCaseFolding   = 0xCF // case-insensitive
	HFSBinaryCompare = 0xBC // case-sensitive (HFSX only)
)

type BTHeaderRec struct {
	TreeDepth      uint16
	RootNode       uint32
	LeafRecords    uint32
	FirstLeafNode  uint32
	LastLeafNode   uint32
	NodeSize       uint16
	MaxKeyLength   uint16
	TotalNodes     uint32
	FreeNodes      uint32
	Reserved1      uint16
	ClumpSize      uint32 // misaligned
	BtreeType      btreeType
	KeyCompareType uint8
	Attributes     uint32 // long aligned again
	Reserved3      [16]uint32
}

func (h *BTHeaderRec) BigKeys() bool {
	return h.Attributes&BTBigKeysMask != 0
}

func (h *BTHeaderRec) String() string {
	return fmt.Sprintf("depth=%d, root=%d, leaf_records=%d, first_leaf=%d, last_leaf=%d, node_size=%d, total_nodes=%d, free_nodes=%d",
		h.TreeDepth,
		h.RootNode,
		h.LeafRecords,
		h.FirstLeafNode,
		h.LastLeafNode,
		h.NodeSize,
		h.TotalNodes,
		h.FreeNodes,
	)
}
