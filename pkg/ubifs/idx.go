package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Branch points at one child of an index node: either another index
// node (Level > 0) or a leaf node (Level == 0 in the parent's children).
type Branch struct {
	Key  Key
	LNum uint32
	Offs uint32
	Len  uint32
}

// IdxNode is one node of the wandering B+ tree. Level 0 means its
// branches point directly at leaf nodes (inode/data/dent/trun/xent).
type IdxNode struct {
	ChildCnt uint16
	Level    uint16
	Branches []Branch
}

type wireIdxHeader struct {
	ChildCnt uint16
	Level    uint16
}

type wireBranch struct {
	LNum uint32
	Offs uint32
	Len  uint32
	Key  [8]byte
}

func parseIdxNode(body []byte) (*IdxNode, error) {
	const hdrSize = 4
	const branchSize = 20

	if len(body) < hdrSize {
		return nil, fmt.Errorf("idx node body too short: %d bytes", len(body))
	}

	var hdr wireIdxHeader
	if err := binary.Read(bytes.NewReader(body[:hdrSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}

	rest := body[hdrSize:]
	need := int(hdr.ChildCnt) * branchSize
	if need > len(rest) {
		return nil, fmt.Errorf("idx node child_cnt %d exceeds body", hdr.ChildCnt)
	}

	n := &IdxNode{ChildCnt: hdr.ChildCnt, Level: hdr.Level}
	for i := 0; i < int(hdr.ChildCnt); i++ {
		var wb wireBranch
		off := i * branchSize
		if err := binary.Read(bytes.NewReader(rest[off:off+branchSize]), binary.LittleEndian, &wb); err != nil {
			return nil, err
		}
		n.Branches = append(n.Branches, Branch{
			Key:  ParseKey(wb.Key[:]),
			LNum: wb.LNum,
			Offs: wb.Offs,
			Len:  wb.Len,
		})
	}

	return n, nil
}
