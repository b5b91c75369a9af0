package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/blacktop/go-hfs/internal/testimg"
	"github.com/blacktop/go-hfs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogTree builds an image with n files and returns the raw catalog file
func catalogTree(t *testing.T, n int) (*testimg.Builder, []byte) {
	t.Helper()
	b := testimg.New()
	for i := 0; i < n; i++ {
		b.File(types.HFSRootFolderID, types.CatalogNodeID(16+i), fmt.Sprintf("file-%03d.txt", i), []byte{byte(i)})
	}
	img := b.Bytes()
	return b, bytes.Clone(img[b.CatalogStart : b.CatalogStart+int64(b.CatalogFork.LogicalSize)])
}

func TestOpen(t *testing.T) {
	b, data := catalogTree(t, 0)

	tree, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, testimg.DefaultNodeSize, tree.NodeSize())
	assert.Equal(t, uint32(1+b.Leaves()), tree.TotalNodes())
	assert.Equal(t, uint16(1), tree.Depth())
	assert.Equal(t, uint32(1), tree.Root())
	assert.Equal(t, uint32(2), tree.LeafRecords())
	assert.True(t, tree.Header.BigKeys())
	assert.Equal(t, uint8(types.HFSCaseFolding), tree.Header.KeyCompareType)
	assert.Len(t, tree.Map, testimg.DefaultNodeSize-types.BTHeaderReservedSize)

	assert.True(t, tree.InUse(0))
	assert.True(t, tree.InUse(1))
	assert.False(t, tree.InUse(2))
}

func TestOpenBadHeader(t *testing.T) {
	_, good := catalogTree(t, 0)

	tests := []struct {
		name string
		tree func() []byte
	}{
		{
			name: "too small",
			tree: func() []byte { return good[:100] },
		},
		{
			name: "not a header node",
			tree: func() []byte {
				data := bytes.Clone(good)
				data[8] = byte(0xFF) // leaf
				return data
			},
		},
		{
			name: "node size not a power of two",
			tree: func() []byte {
				data := bytes.Clone(good)
				binary.BigEndian.PutUint16(data[types.BTNodeDescriptorSize+18:], 600)
				return data
			},
		},
		{
			name: "node size too small",
			tree: func() []byte {
				data := bytes.Clone(good)
				binary.BigEndian.PutUint16(data[types.BTNodeDescriptorSize+18:], 256)
				return data
			},
		},
		{
			name: "node size larger than tree",
			tree: func() []byte {
				data := bytes.Clone(good)
				binary.BigEndian.PutUint16(data[types.BTNodeDescriptorSize+18:], 8192)
				return data
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.tree())
			assert.ErrorIs(t, err, ErrBadHeaderNode)
		})
	}
}

func TestWalkMultipleLeaves(t *testing.T) {
	b, data := catalogTree(t, 40)
	require.Greater(t, b.Leaves(), 3)

	tree, err := Open(data)
	require.NoError(t, err)

	var (
		visited []uint32
		records int
	)
	errs := tree.WalkLeaves(func(n uint32, node *Node) {
		assert.True(t, node.IsLeaf())
		assert.Equal(t, n, node.Number)
		assert.Len(t, node.Records, int(node.Descriptor.NumRecords))
		visited = append(visited, n)
		records += len(node.Records)
	})
	assert.Empty(t, errs)
	assert.Len(t, visited, b.Leaves())
	assert.Equal(t, int(tree.LeafRecords()), records)
	// 40 files + 40 threads + root folder + root thread
	assert.Equal(t, 82, records)
}

func TestWalkSkipsCorruptNode(t *testing.T) {
	_, data := catalogTree(t, 40)
	tree, err := Open(data)
	require.NoError(t, err)

	var clean int
	tree.WalkLeaves(func(n uint32, node *Node) {
		if n == 2 {
			clean = len(node.Records)
		}
	})
	require.NotZero(t, clean)

	// first record offset pointing into the descriptor
	ns := testimg.DefaultNodeSize
	binary.BigEndian.PutUint16(data[2*ns+ns-2:], 4)
	// a free node is skipped without an error
	copy(data[3*ns:4*ns], make([]byte, ns))

	var records int
	errs := tree.WalkLeaves(func(n uint32, node *Node) {
		assert.NotEqual(t, uint32(2), n)
		assert.NotEqual(t, uint32(3), n)
		records += len(node.Records)
	})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNodeRead)

	var nerr *NodeError
	require.ErrorAs(t, errs[0], &nerr)
	assert.Equal(t, uint32(2), nerr.Node)
	assert.Less(t, records, 82)
	assert.Greater(t, records, 0)
}

func TestDecodeNode(t *testing.T) {
	ns := 512
	leaf := func(numRecords uint16, offsets ...uint16) []byte {
		raw := make([]byte, ns)
		raw[8] = 0xFF
		binary.BigEndian.PutUint16(raw[10:], numRecords)
		for i, off := range offsets {
			binary.BigEndian.PutUint16(raw[ns-2*(i+1):], off)
		}
		return raw
	}

	tests := []struct {
		name        string
		raw         []byte
		wantRecords []int
		wantErr     bool
	}{
		{
			name:        "two records",
			raw:         leaf(2, 14, 30, 40),
			wantRecords: []int{16, 10},
		},
		{
			name:        "empty leaf",
			raw:         leaf(0, 14),
			wantRecords: []int{},
		},
		{
			name:    "unknown kind",
			raw:     func() []byte { raw := leaf(0, 14); raw[8] = 5; return raw }(),
			wantErr: true,
		},
		{
			name:    "offset inside descriptor",
			raw:     leaf(1, 10, 40),
			wantErr: true,
		},
		{
			name:    "offsets not increasing",
			raw:     leaf(2, 14, 40, 30),
			wantErr: true,
		},
		{
			name:    "offset in the table",
			raw:     leaf(1, 14, 510),
			wantErr: true,
		},
		{
			name:    "too many records",
			raw:     leaf(400, 14),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := decodeNode(7, tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNodeRead)
				return
			}
			require.NoError(t, err)
			assert.True(t, node.IsLeaf())
			assert.False(t, node.IsIndex())
			lens := []int{}
			for _, rec := range node.Records {
				lens = append(lens, len(rec))
			}
			assert.Equal(t, tt.wantRecords, lens)
		})
	}
}

func TestNodePastEnd(t *testing.T) {
	_, data := catalogTree(t, 0)
	tree, err := Open(data)
	require.NoError(t, err)

	_, err = tree.Node(100)
	assert.ErrorIs(t, err, ErrNodeRead)
}
