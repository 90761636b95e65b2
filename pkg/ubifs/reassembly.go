package ubifs

import "fmt"

// ReassembleError annotates a decompression or size-mismatch failure
// with the file inode and block index where it occurred.
type ReassembleError struct {
	Inum  uint32
	Block uint32
	Err   error
}

func (e *ReassembleError) Error() string {
	return fmt.Sprintf("ubifs: reassemble inode %d block %d: %v", e.Inum, e.Block, e.Err)
}

func (e *ReassembleError) Unwrap() error { return e.Err }

// ReassembleFile decompresses and concatenates a regular file's data
// blocks in order, zero-filling any missing block (a hole), and
// truncates or pads the result to the inode's declared Size.
func ReassembleFile(e *InodeEntry) ([]byte, error) {
	if e.Inode == nil {
		return nil, fmt.Errorf("ubifs: reassemble: missing inode node")
	}

	size := e.Inode.Size
	out := make([]byte, 0, size)

	indices := e.SortedBlockIndices()
	var maxIdx uint32
	if len(indices) > 0 {
		maxIdx = indices[len(indices)-1]
	}
	if size > 0 {
		if last := uint32((size - 1) / BlockSize); last > maxIdx {
			maxIdx = last
		}
	}

	for idx := uint32(0); idx <= maxIdx; idx++ {
		blockLen := BlockSize
		if remain := size - uint64(idx)*BlockSize; remain < BlockSize {
			blockLen = int(remain)
		}
		if blockLen <= 0 {
			break
		}

		node, ok := e.Blocks[idx]
		if !ok {
			out = append(out, make([]byte, blockLen)...)
			continue
		}

		plain, err := Decompress(node.ComprType, node.Compressed, int(node.Size))
		if err != nil {
			return nil, &ReassembleError{e.Inode.Key.Inum, idx, err}
		}
		if len(plain) < blockLen {
			plain = append(plain, make([]byte, blockLen-len(plain))...)
		}
		out = append(out, plain[:blockLen]...)
	}

	if uint64(len(out)) > size {
		out = out[:size]
	} else if uint64(len(out)) < size {
		out = append(out, make([]byte, size-uint64(len(out)))...)
	}

	return out, nil
}

// ReassembleInline decompresses an inode's inline data payload (a
// symlink target, or device major/minor bytes), which is never split
// across DATA nodes.
func ReassembleInline(n *InodeNode) ([]byte, error) {
	if len(n.Data) == 0 {
		return nil, nil
	}
	if n.ComprType == ComprNone {
		return n.Data, nil
	}
	plain, err := Decompress(n.ComprType, n.Data, int(n.Size))
	if err != nil {
		return nil, &ReassembleError{n.Key.Inum, 0, err}
	}
	return plain, nil
}
