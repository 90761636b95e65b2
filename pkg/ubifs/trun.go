package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TrunNode records a truncation of inode Inum's data to NewSize bytes.
// The walk keeps the last one seen per inode and applies it once the
// traversal is complete.
type TrunNode struct {
	Inum    uint32
	OldSize uint64
	NewSize uint64
}

type wireTrun struct {
	Inum uint32
	_    uint32 // padding
	OldSize uint64
	NewSize uint64
}

func parseTrunNode(body []byte) (*TrunNode, error) {
	const fixedSize = 24
	if len(body) < fixedSize {
		return nil, fmt.Errorf("trun node body too short: %d bytes", len(body))
	}

	var w wireTrun
	if err := binary.Read(bytes.NewReader(body[:fixedSize]), binary.LittleEndian, &w); err != nil {
		return nil, err
	}

	return &TrunNode{
		Inum:    w.Inum,
		OldSize: w.OldSize,
		NewSize: w.NewSize,
	}, nil
}
