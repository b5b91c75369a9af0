// Package testimg builds small HFS+ images in memory for tests.
package testimg

import (
	"bytes"
	"encoding/binary"

	"github.com/blacktop/go-hfs/types"
)

const (
	DefaultSize      = 64 * 1024
	DefaultBlockSize = 4096
	DefaultNodeSize  = 512
	VolumeName       = "Untitled"
)

// Builder lays out a volume: block 0 holds the preamble and header, file data is
// allocated as it is added, and the catalog is placed after it by Bytes.
type Builder struct {
	BlockSize uint32
	NodeSize  uint16
	Signature uint16
	Preamble  []byte

	size    int
	next    uint32
	data    map[uint32][]byte
	leaves  [][][]byte
	files   uint32
	folders uint32
	journal *types.JournalInfoBlock

	// set by Bytes
	CatalogStart  int64
	CatalogFork   types.ForkData
	TotalBlocks   uint32
	AllocatedUsed uint32
}

// New returns a builder whose catalog already holds the root folder and its thread
func New() *Builder {
	b := &Builder{
		BlockSize: DefaultBlockSize,
		NodeSize:  DefaultNodeSize,
		Signature: types.HFSPlusSigWord,
		size:      DefaultSize,
		next:      1,
		data:      make(map[uint32][]byte),
	}
	b.Folder(types.HFSRootParentID, types.HFSRootFolderID, VolumeName)
	return b
}

// Size sets the minimum image size in bytes
func (b *Builder) Size(n int) *Builder {
	b.size = n
	return b
}

// Alloc places data in fresh contiguous blocks and returns the extent
func (b *Builder) Alloc(data []byte) types.ExtentDescriptor {
	count := (uint32(len(data)) + b.BlockSize - 1) / b.BlockSize
	if count == 0 {
		return types.ExtentDescriptor{}
	}
	ext := types.ExtentDescriptor{StartBlock: b.next, BlockCount: count}
	b.data[b.next] = data
	b.next += count
	return ext
}

// Fork allocates data as a single extent fork
func (b *Builder) Fork(data []byte) types.ForkData {
	ext := b.Alloc(data)
	fd := types.ForkData{
		LogicalSize: uint64(len(data)),
		TotalBlocks: ext.BlockCount,
	}
	fd.Extents[0] = ext
	return fd
}

// Fragmented allocates data one block per extent, leaving a gap block between extents
func (b *Builder) Fragmented(data []byte) types.ForkData {
	fd := types.ForkData{LogicalSize: uint64(len(data))}
	for i := 0; i < len(fd.Extents) && len(data) > 0; i++ {
		n := min(len(data), int(b.BlockSize))
		fd.Extents[i] = b.Alloc(data[:n])
		fd.TotalBlocks += fd.Extents[i].BlockCount
		data = data[n:]
		b.next++ // gap
	}
	return fd
}

// Folder adds a folder record and its thread
func (b *Builder) Folder(parent, id types.CatalogNodeID, name string) {
	b.FolderRecord(parent, id, name)
	b.Thread(id, parent, name, types.HFSPlusFolderThreadRecord)
}

// FolderRecord adds only the folder record
func (b *Builder) FolderRecord(parent, id types.CatalogNodeID, name string) {
	folder := types.CatalogFolder{
		RecordType: types.HFSPlusFolderRecord,
		FolderID:   id,
		CreateDate: 3_600_000_000,
		Permissions: types.BSDInfo{
			FileMode: types.S_IFDIR | 0o755,
		},
	}
	b.Record(types.NewCatalogKey(parent, name), encode(&folder))
	if id != types.HFSRootFolderID {
		b.folders++
	}
}

// File adds a file with a single extent data fork, its file record and its thread
func (b *Builder) File(parent, id types.CatalogNodeID, name string, data []byte) types.ForkData {
	fd := b.Fork(data)
	b.FileRecord(parent, id, name, fd, types.ForkData{})
	b.Thread(id, parent, name, types.HFSPlusFileThreadRecord)
	return fd
}

// FileRecord adds only the file record with the given forks
func (b *Builder) FileRecord(parent, id types.CatalogNodeID, name string, data, rsrc types.ForkData) {
	file := types.CatalogFile{
		RecordType:     types.HFSPlusFileRecord,
		Flags:          types.HFSThreadExistsMask,
		FileID:         id,
		CreateDate:     3_600_000_000,
		ContentModDate: 3_700_000_000,
		Permissions: types.BSDInfo{
			FileMode: types.S_IFREG | 0o644,
		},
		DataFork:     data,
		ResourceFork: rsrc,
	}
	b.Record(types.NewCatalogKey(parent, name), encode(&file))
	b.files++
}

// Thread adds a thread record for id
func (b *Builder) Thread(id, parent types.CatalogNodeID, name string, typ types.RecordType) {
	b.Record(types.ThreadKey(id), ThreadPayload(typ, parent, name))
}

// ThreadPayload encodes a thread record body
func ThreadPayload(typ types.RecordType, parent types.CatalogNodeID, name string) []byte {
	us := types.UniStr255FromString(name)
	out := make([]byte, 10+2*len(us.UniChar))
	binary.BigEndian.PutUint16(out[0:], uint16(typ))
	binary.BigEndian.PutUint32(out[4:], uint32(parent))
	binary.BigEndian.PutUint16(out[8:], us.Length)
	for i, c := range us.UniChar {
		binary.BigEndian.PutUint16(out[10+2*i:], c)
	}
	return out
}

// RawRecord encodes a leaf record: key length, key, pad to even, payload
func RawRecord(key, payload []byte) []byte {
	out := make([]byte, 2, 2+len(key)+1+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(key)))
	out = append(out, key...)
	if len(key)%2 == 1 {
		out = append(out, 0)
	}
	return append(out, payload...)
}

// Record appends a raw record to the current leaf, starting a new leaf when it is full
func (b *Builder) Record(key, payload []byte) {
	b.Raw(RawRecord(key, payload))
}

// Raw appends already encoded record bytes to the current leaf
func (b *Builder) Raw(rec []byte) {
	if len(b.leaves) == 0 || !b.fits(b.leaves[len(b.leaves)-1], rec) {
		b.NewLeaf()
	}
	b.leaves[len(b.leaves)-1] = append(b.leaves[len(b.leaves)-1], rec)
}

// NewLeaf starts a new leaf node
func (b *Builder) NewLeaf() {
	b.leaves = append(b.leaves, nil)
}

func (b *Builder) fits(leaf [][]byte, rec []byte) bool {
	used := types.BTNodeDescriptorSize + 2*(len(leaf)+2) + len(rec)
	for _, r := range leaf {
		used += len(r)
	}
	return used <= int(b.NodeSize)
}

// Journal places a journal info block and marks the volume journaled
func (b *Builder) Journal(jib types.JournalInfoBlock) {
	b.journal = &jib
}

// Leaves returns the number of leaf nodes
func (b *Builder) Leaves() int {
	return len(b.leaves)
}

// NodeOffset is the image offset of catalog node n (valid after Bytes)
func (b *Builder) NodeOffset(n uint32) int64 {
	return b.CatalogStart + int64(n)*int64(b.NodeSize)
}

func (b *Builder) catalog() []byte {
	ns := int(b.NodeSize)
	total := 1 + len(b.leaves)
	tree := make([]byte, total*ns)

	var leafRecords int
	for i, leaf := range b.leaves {
		n := uint32(i + 1)
		node := tree[int(n)*ns : int(n+1)*ns]
		desc := types.BTNodeDescriptor{
			Kind:       types.BTLeafNodeKind,
			Height:     1,
			NumRecords: uint16(len(leaf)),
		}
		if i > 0 {
			desc.BLink = n - 1
		}
		if i < len(b.leaves)-1 {
			desc.FLink = n + 1
		}
		copy(node, encode(&desc))
		off := types.BTNodeDescriptorSize
		for j, rec := range leaf {
			binary.BigEndian.PutUint16(node[ns-2*(j+1):], uint16(off))
			copy(node[off:], rec)
			off += len(rec)
		}
		binary.BigEndian.PutUint16(node[ns-2*(len(leaf)+1):], uint16(off))
		leafRecords += len(leaf)
	}

	hdr := types.BTHeaderRec{
		TreeDepth:      1,
		RootNode:       1,
		LeafRecords:    uint32(leafRecords),
		FirstLeafNode:  1,
		LastLeafNode:   uint32(len(b.leaves)),
		NodeSize:       b.NodeSize,
		MaxKeyLength:   516,
		TotalNodes:     uint32(total),
		ClumpSize:      uint32(ns),
		KeyCompareType: types.HFSCaseFolding,
		Attributes:     types.BTBigKeysMask | types.BTVariableIndexKeysMask,
	}
	if len(b.leaves) == 0 {
		hdr.TreeDepth, hdr.RootNode, hdr.FirstLeafNode = 0, 0, 0
	}
	node := tree[:ns]
	copy(node, encode(&types.BTNodeDescriptor{Kind: types.BTHeaderNodeKind, NumRecords: 3}))
	copy(node[types.BTNodeDescriptorSize:], encode(&hdr))
	mapOff := types.BTNodeDescriptorSize + types.BTHeaderRecSize + types.BTUserDataSize
	for n := 0; n < total && n/8 < ns-types.BTHeaderReservedSize; n++ {
		node[mapOff+n/8] |= 0x80 >> (n % 8)
	}
	for i, off := range []int{types.BTNodeDescriptorSize, types.BTNodeDescriptorSize + types.BTHeaderRecSize, mapOff, ns - 8} {
		binary.BigEndian.PutUint16(node[ns-2*(i+1):], uint16(off))
	}
	return tree
}

// Bytes lays out the image; call it once
func (b *Builder) Bytes() []byte {
	hdr := types.VolumeHeader{
		Signature:          b.Signature,
		Version:            types.HFSPlusVersion,
		Attributes:         1 << types.HFSVolumeUnmountedBit,
		LastMountedVersion: [4]byte{'1', '0', '.', '0'},
		CreateDate:         3_600_000_000,
		ModifyDate:         3_700_000_000,
		FileCount:          b.files,
		FolderCount:        b.folders,
		BlockSize:          b.BlockSize,
		NextCatalogID:      types.HFSFirstUserCatalogNodeID,
	}
	if b.Signature == types.HFSXSigWord {
		hdr.Version = types.HFSXVersion
	}

	if b.journal != nil {
		jib := b.Alloc(encode(b.journal))
		hdr.JournalInfoBlock = jib.StartBlock
		hdr.Attributes |= 1 << types.HFSVolumeJournaledBit
	}

	tree := b.catalog()
	cat := b.Alloc(tree)
	hdr.CatalogFile = types.ForkData{
		LogicalSize: uint64(len(tree)),
		ClumpSize:   uint32(b.NodeSize),
		TotalBlocks: cat.BlockCount,
	}
	hdr.CatalogFile.Extents[0] = cat
	b.CatalogFork = hdr.CatalogFile
	b.CatalogStart = int64(cat.StartBlock) * int64(b.BlockSize)

	// allocation bitmap goes last so it can cover itself
	bitmapBlock := b.next
	used := b.next + 1
	total := uint32(b.size) / b.BlockSize
	if total < used {
		total = used
	}
	bitmap := make([]byte, b.BlockSize)
	for blk := uint32(0); blk < used; blk++ {
		bitmap[blk/8] |= 0x80 >> (blk % 8)
	}
	b.data[bitmapBlock] = bitmap
	b.next++
	hdr.AllocationFile = types.ForkData{
		LogicalSize: uint64(b.BlockSize),
		TotalBlocks: 1,
	}
	hdr.AllocationFile.Extents[0] = types.ExtentDescriptor{StartBlock: bitmapBlock, BlockCount: 1}

	hdr.TotalBlocks = total
	hdr.FreeBlocks = total - used
	hdr.NextAllocation = used
	b.TotalBlocks = total
	b.AllocatedUsed = used

	img := make([]byte, int(total)*int(b.BlockSize))
	copy(img, b.Preamble)
	copy(img[types.VolumeHeaderOffset:], encode(&hdr))
	for blk, data := range b.data {
		copy(img[int(blk)*int(b.BlockSize):], data)
	}
	return img
}

func encode(v any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
