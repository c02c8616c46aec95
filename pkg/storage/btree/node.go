// Package btree implements a disk-resident, concurrent B+tree index with
// latch crabbing: keys are int64, values are primitives.RID, and every
// node lives inside a buffer-pool Page, pinned and latched for the
// duration it is touched.
package btree

import (
	"encoding/binary"

	"storemy/pkg/primitives"
)

type nodeType uint8

const (
	typeInternal nodeType = 1
	typeLeaf     nodeType = 2
)

// header is the common prefix every node's encoded page starts with:
// node type, current size, max size, and parent page id. Leaf pages
// additionally carry a next-page-id for the leaf-chain scan.
const headerSize = 1 + 4 + 4 + 4 // type + size + maxSize + parentID
const leafHeaderSize = headerSize + 4

// internalNode is the decoded, mutable form of an internal page: size
// keys separating size+1 children.
type internalNode struct {
	size     int32
	maxSize  int32
	parentID primitives.PageID
	keys     []int64
	children []primitives.PageID
}

// leafNode is the decoded, mutable form of a leaf page: size (key, rid)
// pairs plus the next-leaf pointer used for ordered range scans.
type leafNode struct {
	size     int32
	maxSize  int32
	parentID primitives.PageID
	nextLeaf primitives.PageID
	keys     []int64
	values   []primitives.RID
}

func decodeInternal(data []byte) *internalNode {
	n := &internalNode{}
	n.size = int32(binary.LittleEndian.Uint32(data[1:5]))
	n.maxSize = int32(binary.LittleEndian.Uint32(data[5:9]))
	n.parentID = primitives.PageID(int32(binary.LittleEndian.Uint32(data[9:13])))

	off := headerSize
	n.keys = make([]int64, n.size)
	for i := int32(0); i < n.size; i++ {
		n.keys[i] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
	}
	n.children = make([]primitives.PageID, n.size+1)
	for i := int32(0); i <= n.size; i++ {
		n.children[i] = primitives.PageID(int32(binary.LittleEndian.Uint32(data[off : off+4])))
		off += 4
	}
	return n
}

func (n *internalNode) encode(data []byte) {
	data[0] = byte(typeInternal)
	binary.LittleEndian.PutUint32(data[1:5], uint32(n.size))
	binary.LittleEndian.PutUint32(data[5:9], uint32(n.maxSize))
	binary.LittleEndian.PutUint32(data[9:13], uint32(int32(n.parentID)))

	off := headerSize
	for _, k := range n.keys {
		binary.LittleEndian.PutUint64(data[off:off+8], uint64(k))
		off += 8
	}
	for _, c := range n.children {
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(c)))
		off += 4
	}
}

func decodeLeaf(data []byte) *leafNode {
	n := &leafNode{}
	n.size = int32(binary.LittleEndian.Uint32(data[1:5]))
	n.maxSize = int32(binary.LittleEndian.Uint32(data[5:9]))
	n.parentID = primitives.PageID(int32(binary.LittleEndian.Uint32(data[9:13])))
	n.nextLeaf = primitives.PageID(int32(binary.LittleEndian.Uint32(data[13:17])))

	off := leafHeaderSize
	n.keys = make([]int64, n.size)
	n.values = make([]primitives.RID, n.size)
	for i := int32(0); i < n.size; i++ {
		n.keys[i] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		pid := primitives.PageID(int32(binary.LittleEndian.Uint32(data[off : off+4])))
		off += 4
		slot := primitives.SlotID(int32(binary.LittleEndian.Uint32(data[off : off+4])))
		off += 4
		n.values[i] = primitives.NewRID(pid, slot)
	}
	return n
}

func (n *leafNode) encode(data []byte) {
	data[0] = byte(typeLeaf)
	binary.LittleEndian.PutUint32(data[1:5], uint32(n.size))
	binary.LittleEndian.PutUint32(data[5:9], uint32(n.maxSize))
	binary.LittleEndian.PutUint32(data[9:13], uint32(int32(n.parentID)))
	binary.LittleEndian.PutUint32(data[13:17], uint32(int32(n.nextLeaf)))

	off := leafHeaderSize
	for i, k := range n.keys {
		binary.LittleEndian.PutUint64(data[off:off+8], uint64(k))
		off += 8
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(n.values[i].PageID)))
		off += 4
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(n.values[i].Slot)))
		off += 4
	}
}

func pageIsLeaf(data []byte) bool {
	return nodeType(data[0]) == typeLeaf
}

// isSafeForInsert reports whether a node can absorb one more entry
// without splitting, the crabbing "safe" predicate for descents that
// insert.
func isSafeForInsert(size, maxSize int32) bool {
	return size < maxSize-2
}

// isSafeForDelete reports whether a node can lose one more entry without
// underflowing below its minimum occupancy, the crabbing "safe" predicate
// for descents that remove. Minimum occupancy is maxSize/2 (ceil), so a
// node is safe if it currently has more than that.
func isSafeForDelete(size, maxSize int32) bool {
	minSize := (maxSize + 1) / 2
	return size > minSize
}
