package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Inode type bits, matching POSIX S_IF* values as stored in Mode.
const (
	ModeFmt  = 0xF000
	ModeDir  = 0x4000
	ModeReg  = 0x8000
	ModeLnk  = 0xA000
	ModeBlk  = 0x6000
	ModeChr  = 0x2000
	ModeFifo = 0x1000
	ModeSock = 0xC000
)

// Compression types, as stored in InodeNode.ComprType and DataNode.ComprType.
const (
	ComprNone = 0
	ComprLZO  = 1
	ComprZlib = 2
	ComprZstd = 3
)

// RootInum is the fixed inode number of the root directory.
const RootInum = 1

// MinComprLen is the threshold below which inline inode data (symlink
// targets, tiny file bodies) is never compressed.
const MinComprLen = 128

// InodeNode is the leaf record describing one inode's metadata. Data
// carries the symlink target for ModeLnk inodes, or the packed
// major/minor device number for ModeBlk/ModeChr.
type InodeNode struct {
	Key Key

	CreatSQNum uint64
	Size       uint64
	AtimeSec   int64
	CtimeSec   int64
	MtimeSec   int64
	AtimeNsec  uint32
	CtimeNsec  uint32
	MtimeNsec  uint32
	NLink      uint32
	UID        uint32
	GID        uint32
	Mode       uint32
	Flags      uint32
	DataLen    uint32
	ComprType  uint16

	Data []byte
}

// IsDir, IsRegular, IsSymlink, IsDevice, IsFifo, IsSock classify the
// inode by its Mode field.
func (n *InodeNode) IsDir() bool      { return n.Mode&ModeFmt == ModeDir }
func (n *InodeNode) IsRegular() bool  { return n.Mode&ModeFmt == ModeReg }
func (n *InodeNode) IsSymlink() bool  { return n.Mode&ModeFmt == ModeLnk }
func (n *InodeNode) IsBlockDev() bool { return n.Mode&ModeFmt == ModeBlk }
func (n *InodeNode) IsCharDev() bool  { return n.Mode&ModeFmt == ModeChr }
func (n *InodeNode) IsFifo() bool     { return n.Mode&ModeFmt == ModeFifo }
func (n *InodeNode) IsSocket() bool   { return n.Mode&ModeFmt == ModeSock }

// wireInode is the fixed-size, byte-exact prefix of an on-medium INODE
// node (everything before the variable-length xattr/data tail).
type wireInode struct {
	Key        [8]byte
	CreatSQNum uint64
	Size       uint64
	AtimeSec   int64
	CtimeSec   int64
	MtimeSec   int64
	AtimeNsec  uint32
	CtimeNsec  uint32
	MtimeNsec  uint32
	NLink      uint32
	UID        uint32
	GID        uint32
	Mode       uint32
	Flags      uint32
	_          uint32 // compat flags, unused
	DataLen    uint32
	_          uint32 // xattr_cnt, unused
	_          uint32 // xattr_size, unused
	_          uint32 // xattr_names, unused
	ComprType  uint16
	_          uint16 // padding
}

func parseInodeNode(body []byte) (*InodeNode, error) {
	const fixedSize = 104
	if len(body) < fixedSize {
		return nil, fmt.Errorf("inode node body too short: %d bytes", len(body))
	}

	var w wireInode
	if err := binary.Read(bytes.NewReader(body[:fixedSize]), binary.LittleEndian, &w); err != nil {
		return nil, err
	}

	n := &InodeNode{
		Key:        ParseKey(w.Key[:]),
		CreatSQNum: w.CreatSQNum,
		Size:       w.Size,
		AtimeSec:   w.AtimeSec,
		CtimeSec:   w.CtimeSec,
		MtimeSec:   w.MtimeSec,
		AtimeNsec:  w.AtimeNsec,
		CtimeNsec:  w.CtimeNsec,
		MtimeNsec:  w.MtimeNsec,
		NLink:      w.NLink,
		UID:        w.UID,
		GID:        w.GID,
		Mode:       w.Mode,
		Flags:      w.Flags,
		DataLen:    w.DataLen,
		ComprType:  w.ComprType,
	}

	rest := body[fixedSize:]
	if int(n.DataLen) > len(rest) {
		return nil, fmt.Errorf("inode data_len %d exceeds body %d", n.DataLen, len(rest))
	}
	n.Data = append([]byte(nil), rest[:n.DataLen]...)

	return n, nil
}
