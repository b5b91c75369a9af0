package btree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/apex/log"
	"github.com/blacktop/go-hfs/types"
)

var (
	// ErrBadHeaderNode is returned when node 0 is not a usable header node
	ErrBadHeaderNode = errors.New("bad b-tree header node")
	// ErrNodeRead is returned when a node is unreadable or internally inconsistent
	ErrNodeRead = errors.New("failed to read b-tree node")
)

// NodeError is a failure tied to one node number
type NodeError struct {
	Node uint32
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func nodeErrorf(n uint32, format string, args ...any) *NodeError {
	return &NodeError{
		Node: n,
		Err:  fmt.Errorf("%w: "+format, append([]any{ErrNodeRead}, args...)...),
	}
}

// Tree is a B-tree file held fully in memory and addressed by node number
type Tree struct {
	Descriptor types.BTNodeDescriptor
	Header     types.BTHeaderRec
	UserData   [types.BTUserDataSize]byte
	Map        []byte

	data     []byte
	nodeSize int
}

// Open decodes the header node of a materialized B-tree file
func Open(data []byte) (*Tree, error) {
	if len(data) < types.BTMinNodeSize {
		return nil, fmt.Errorf("%w: tree is %d bytes", ErrBadHeaderNode, len(data))
	}

	t := &Tree{data: data}

	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &t.Descriptor); err != nil {
		return nil, fmt.Errorf("%w: failed to read node descriptor: %v", ErrBadHeaderNode, err)
	}
	if t.Descriptor.Kind != types.BTHeaderNodeKind {
		return nil, fmt.Errorf("%w: node 0 kind is %s", ErrBadHeaderNode, t.Descriptor.Kind)
	}
	if err := binary.Read(r, binary.BigEndian, &t.Header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header record: %v", ErrBadHeaderNode, err)
	}

	ns := int(t.Header.NodeSize)
	if ns < types.BTMinNodeSize || ns > types.BTMaxNodeSize || bits.OnesCount(uint(ns)) != 1 {
		return nil, fmt.Errorf("%w: invalid node size %d", ErrBadHeaderNode, ns)
	}
	if len(data) < ns {
		return nil, fmt.Errorf("%w: tree is %d bytes, node size is %d", ErrBadHeaderNode, len(data), ns)
	}
	t.nodeSize = ns

	userOff := types.BTNodeDescriptorSize + types.BTHeaderRecSize
	copy(t.UserData[:], data[userOff:userOff+types.BTUserDataSize])
	mapOff := userOff + types.BTUserDataSize
	t.Map = data[mapOff : mapOff+ns-types.BTHeaderReservedSize]

	if uint64(t.Header.TotalNodes)*uint64(ns) > uint64(len(data)) {
		log.Warnf("b-tree header claims %d nodes, only %d are materialized", t.Header.TotalNodes, t.arenaNodes())
	}

	log.WithFields(log.Fields{
		"depth":        t.Header.TreeDepth,
		"root":         t.Header.RootNode,
		"leaf_records": t.Header.LeafRecords,
		"node_size":    t.Header.NodeSize,
		"total_nodes":  t.Header.TotalNodes,
		"free_nodes":   t.Header.FreeNodes,
	}).Debug("B-Tree Header")

	return t, nil
}

func (t *Tree) arenaNodes() uint32 {
	return uint32(len(t.data) / t.nodeSize)
}

func (t *Tree) NodeSize() int       { return t.nodeSize }
func (t *Tree) TotalNodes() uint32  { return t.Header.TotalNodes }
func (t *Tree) Depth() uint16       { return t.Header.TreeDepth }
func (t *Tree) LeafRecords() uint32 { return t.Header.LeafRecords }
func (t *Tree) Root() uint32        { return t.Header.RootNode }

// InUse reports the node's bit in the header map record (nodes past the header map are assumed in use)
func (t *Tree) InUse(n uint32) bool {
	if int(n/8) >= len(t.Map) {
		return true
	}
	return t.Map[n/8]&(0x80>>(n%8)) != 0
}

// Node decodes node n from the arena
func (t *Tree) Node(n uint32) (*Node, error) {
	if n >= t.arenaNodes() {
		return nil, nodeErrorf(n, "past the end of the tree (%d nodes)", t.arenaNodes())
	}
	start := int(n) * t.nodeSize
	return decodeNode(n, t.data[start:start+t.nodeSize])
}

// Walk visits node numbers 1..TotalNodes-1 in order and hands every decoded node to fn.
// Sibling links are not followed; failures are collected and the walk continues.
func (t *Tree) Walk(fn func(n uint32, node *Node)) []error {
	var errs []error

	last := t.Header.TotalNodes
	if an := t.arenaNodes(); last > an {
		last = an
	}

	for n := uint32(1); n < last; n++ {
		start := int(n) * t.nodeSize
		if isZero(t.data[start : start+t.nodeSize]) {
			continue // free node
		}
		node, err := t.Node(n)
		if err != nil {
			log.WithError(err).Debugf("skipping b-tree node %d", n)
			errs = append(errs, err)
			continue
		}
		fn(n, node)
	}

	return errs
}

// WalkLeaves is Walk restricted to leaf nodes that carry records
func (t *Tree) WalkLeaves(fn func(n uint32, node *Node)) []error {
	return t.Walk(func(n uint32, node *Node) {
		if node.IsLeaf() && len(node.Records) > 0 {
			fn(n, node)
		}
	})
}

func (t *Tree) String() string {
	return t.Header.String()
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
