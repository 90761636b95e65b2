package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DataNode is one block's worth of (possibly compressed) file data.
// Key.Hash carries the block index within the file, per UBIFS's
// packed-key convention.
type DataNode struct {
	Key       Key
	Size      uint32 // length of the decompressed block
	ComprType uint16

	Compressed []byte
}

type wireData struct {
	Key       [8]byte
	Size      uint32
	ComprType uint16
	_         uint16 // padding
}

func parseDataNode(body []byte) (*DataNode, error) {
	const fixedSize = 16
	if len(body) < fixedSize {
		return nil, fmt.Errorf("data node body too short: %d bytes", len(body))
	}

	var w wireData
	if err := binary.Read(bytes.NewReader(body[:fixedSize]), binary.LittleEndian, &w); err != nil {
		return nil, err
	}

	n := &DataNode{
		Key:       ParseKey(w.Key[:]),
		Size:      w.Size,
		ComprType: w.ComprType,
	}
	n.Compressed = append([]byte(nil), body[fixedSize:]...)

	return n, nil
}

// BlockIndex returns the file-relative block number this node covers.
func (n *DataNode) BlockIndex() uint32 { return n.Key.Hash }
