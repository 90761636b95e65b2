package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Directory entry types, as stored in DentNode.Type.
const (
	EntryReg = iota
	EntryDir
	EntryLnk
	EntryBlk
	EntryChr
	EntryFifo
	EntrySock
)

// DentNode is a directory (or extended-attribute) entry: it names a
// child inode under a parent. Key.Inum is the parent, Key.Hash is the
// name hash used for tree lookup; Inum is the child inode number.
type DentNode struct {
	Key   Key
	Inum  uint32
	Type  uint8
	NLen  uint16
	Name  []byte
	IsXattr bool // set by the caller: NodeXent vs NodeDent
}

type wireDent struct {
	Key  [8]byte
	Inum uint32
	Type uint8
	_    uint8 // padding
	NLen uint16
}

func parseDentNode(body []byte) (*DentNode, error) {
	const fixedSize = 16
	if len(body) < fixedSize {
		return nil, fmt.Errorf("dent node body too short: %d bytes", len(body))
	}

	var w wireDent
	if err := binary.Read(bytes.NewReader(body[:fixedSize]), binary.LittleEndian, &w); err != nil {
		return nil, err
	}

	rest := body[fixedSize:]
	if int(w.NLen) > len(rest) {
		return nil, fmt.Errorf("dent name_len %d exceeds body %d", w.NLen, len(rest))
	}

	n := &DentNode{
		Key:  ParseKey(w.Key[:]),
		Inum: w.Inum,
		Type: w.Type,
		NLen: w.NLen,
		Name: append([]byte(nil), rest[:w.NLen]...),
	}

	return n, nil
}
