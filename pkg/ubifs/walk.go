package ubifs

import (
	"fmt"
	"sort"
)

// InodeEntry collects everything the tree walk found for one inode:
// its metadata node, the directory entries naming children under it
// (if it's a directory), and its raw data blocks (if it's a regular
// file or a large symlink target), keyed by block index.
type InodeEntry struct {
	Inode   *InodeNode
	Dents   []*DentNode
	Blocks  map[uint32]*DataNode
	NewSize *uint64 // set by the last TRUN node seen for this inode, if any

	blockSQNum map[uint32]uint64 // common-header sqnum that won each block, for duplicate arbitration
}

// Tree is the result of walking the index from the master node down:
// every inode discovered, plus a record of branch reads that failed
// (bad blocks), which do not abort the walk.
type Tree struct {
	Inodes    map[uint32]*InodeEntry
	BadBlocks []NodeError
}

func (t *Tree) entry(inum uint32) *InodeEntry {
	e, ok := t.Inodes[inum]
	if !ok {
		e = &InodeEntry{Blocks: make(map[uint32]*DataNode), blockSQNum: make(map[uint32]uint64)}
		t.Inodes[inum] = e
	}
	return e
}

// Walk performs a depth-first traversal of the wandering B+ tree
// rooted at (rootLNum, rootOffs, rootLen), visiting every leaf and
// building the inode table. A failure to read the root is fatal; a
// failure to read any branch below it (index or leaf node) is recorded
// as a bad block and skipped, allowing the walk to continue past it.
func Walk(lr LEBReader, rootLNum, rootOffs, rootLen uint32) (*Tree, error) {
	t := &Tree{Inodes: make(map[uint32]*InodeEntry)}

	root, err := ReadNode(lr, rootLNum, rootOffs)
	if err != nil {
		return nil, fmt.Errorf("ubifs: reading index root: %w", err)
	}
	if root.Idx == nil {
		return nil, fmt.Errorf("ubifs: root node at leb %d offset %d is not an index node", rootLNum, rootOffs)
	}

	if err := t.walkIdx(lr, root.Idx); err != nil {
		return nil, err
	}

	t.applyTruncations()

	return t, nil
}

func (t *Tree) walkIdx(lr LEBReader, idx *IdxNode) error {
	for _, br := range idx.Branches {
		n, err := ReadNode(lr, br.LNum, br.Offs)
		if err != nil {
			var ne *NodeError
			if as(err, &ne) {
				t.BadBlocks = append(t.BadBlocks, *ne)
				continue
			}
			return err
		}

		switch {
		case n.Idx != nil:
			if err := t.walkIdx(lr, n.Idx); err != nil {
				return err
			}
		case n.Inode != nil:
			e := t.entry(n.Inode.Key.Inum)
			e.Inode = n.Inode
		case n.Data != nil:
			e := t.entry(n.Data.Key.Inum)
			block := n.Data.BlockIndex()
			if prevSQNum, ok := e.blockSQNum[block]; !ok || n.Header.SQNum > prevSQNum {
				e.Blocks[block] = n.Data
				e.blockSQNum[block] = n.Header.SQNum
			}
		case n.Dent != nil:
			e := t.entry(n.Dent.Key.Inum)
			e.Dents = append(e.Dents, n.Dent)
		case n.Trun != nil:
			e := t.entry(n.Trun.Inum)
			size := n.Trun.NewSize
			e.NewSize = &size
		}
	}
	return nil
}

func (t *Tree) applyTruncations() {
	for inum, e := range t.Inodes {
		if e.NewSize == nil || e.Inode == nil {
			continue
		}
		newSize := *e.NewSize
		e.Inode.Size = newSize
		maxBlock := uint32(0)
		if newSize > 0 {
			maxBlock = uint32((newSize - 1) / BlockSize)
		}
		for idx := range e.Blocks {
			if newSize == 0 || idx > maxBlock {
				delete(e.Blocks, idx)
			}
		}
		_ = inum
	}
}

// as is a tiny errors.As wrapper kept local to avoid importing errors
// just for this one call site in a hot loop.
func as(err error, target **NodeError) bool {
	ne, ok := err.(*NodeError)
	if !ok {
		return false
	}
	*target = ne
	return true
}

// SortedBlockIndices returns an entry's block indices in ascending
// order, for deterministic file reassembly.
func (e *InodeEntry) SortedBlockIndices() []uint32 {
	out := make([]uint32, 0, len(e.Blocks))
	for idx := range e.Blocks {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
