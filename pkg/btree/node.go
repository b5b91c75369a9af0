package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-hfs/types"
)

// Node is one decoded B-tree node; Records are slices into the tree arena
type Node struct {
	Number     uint32
	Descriptor types.BTNodeDescriptor
	Offsets    []uint16
	Records    [][]byte
}

func (n *Node) IsLeaf() bool {
	return n.Descriptor.Kind == types.BTLeafNodeKind
}

func (n *Node) IsIndex() bool {
	return n.Descriptor.Kind == types.BTIndexNodeKind
}

func (n *Node) String() string {
	return fmt.Sprintf("node=%d, kind=%s, height=%d, records=%d, flink=%d, blink=%d",
		n.Number,
		n.Descriptor.Kind,
		n.Descriptor.Height,
		n.Descriptor.NumRecords,
		n.Descriptor.FLink,
		n.Descriptor.BLink,
	)
}

func decodeDescriptor(raw []byte) types.BTNodeDescriptor {
	return types.BTNodeDescriptor{
		FLink:      binary.BigEndian.Uint32(raw[0:]),
		BLink:      binary.BigEndian.Uint32(raw[4:]),
		Kind:       types.BTreeNodeKind(int8(raw[8])),
		Height:     raw[9],
		NumRecords: binary.BigEndian.Uint16(raw[10:]),
		Reserved:   binary.BigEndian.Uint16(raw[12:]),
	}
}

// decodeNode reads the descriptor and the offset table stored backwards at the end of the node.
// The table holds NumRecords+1 entries, the last being the start of free space.
func decodeNode(num uint32, raw []byte) (*Node, error) {
	ns := len(raw)
	node := &Node{
		Number:     num,
		Descriptor: decodeDescriptor(raw),
	}

	switch node.Descriptor.Kind {
	case types.BTLeafNodeKind, types.BTIndexNodeKind, types.BTHeaderNodeKind, types.BTMapNodeKind:
	default:
		return nil, nodeErrorf(num, "unknown node kind %d", node.Descriptor.Kind)
	}

	count := int(node.Descriptor.NumRecords) + 1
	tableStart := ns - 2*count
	if tableStart < types.BTNodeDescriptorSize {
		return nil, nodeErrorf(num, "%d records do not fit in a %d byte node", node.Descriptor.NumRecords, ns)
	}

	node.Offsets = make([]uint16, count)
	for i := range node.Offsets {
		node.Offsets[i] = binary.BigEndian.Uint16(raw[ns-2*(i+1):])
	}

	for i, off := range node.Offsets {
		switch {
		case i == 0 && int(off) < types.BTNodeDescriptorSize:
			return nil, nodeErrorf(num, "first record offset %d overlaps the node descriptor", off)
		case i > 0 && off < node.Offsets[i-1]:
			return nil, nodeErrorf(num, "record offset %d (%d) is below record %d (%d)", i, off, i-1, node.Offsets[i-1])
		case int(off) > tableStart:
			return nil, nodeErrorf(num, "record offset %d (%d) runs into the offset table at %d", i, off, tableStart)
		}
	}

	node.Records = make([][]byte, node.Descriptor.NumRecords)
	for i := range node.Records {
		node.Records[i] = raw[node.Offsets[i]:node.Offsets[i+1]]
	}

	return node, nil
}
