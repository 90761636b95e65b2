package ubifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MasterNode anchors the whole filesystem: it names the index tree's
// root branch and the highest inode number ever allocated. UBIFS keeps
// two copies (LEBs 1 and 2); SelectMaster decides which one is current.
type MasterNode struct {
	HighestInum uint64
	CmtNo       uint64
	RootLNum    uint32
	RootOffs    uint32
	RootLen     uint32
	LogLNum     uint32

	TotalFree  uint64
	TotalDirty uint64
	TotalUsed  uint64
	TotalDead  uint64
	TotalDark  uint64
}

type wireMaster struct {
	HighestInum uint64
	CmtNo       uint64
	RootLNum    uint32
	RootOffs    uint32
	RootLen     uint32
	LogLNum     uint32
	TotalFree   uint64
	TotalDirty  uint64
	TotalUsed   uint64
	TotalDead   uint64
	TotalDark   uint64
}

func parseMasterNode(body []byte) (*MasterNode, error) {
	const fixedSize = 72
	if len(body) < fixedSize {
		return nil, fmt.Errorf("master node body too short: %d bytes", len(body))
	}

	var w wireMaster
	if err := binary.Read(bytes.NewReader(body[:fixedSize]), binary.LittleEndian, &w); err != nil {
		return nil, err
	}

	return &MasterNode{
		HighestInum: w.HighestInum,
		CmtNo:       w.CmtNo,
		RootLNum:    w.RootLNum,
		RootOffs:    w.RootOffs,
		RootLen:     w.RootLen,
		LogLNum:     w.LogLNum,
		TotalFree:   w.TotalFree,
		TotalDirty:  w.TotalDirty,
		TotalUsed:   w.TotalUsed,
		TotalDead:   w.TotalDead,
		TotalDark:   w.TotalDark,
	}, nil
}

// SelectMaster picks the current master node copy out of the (up to
// two) candidates read from LEB 1 and LEB 2, in that order. Resolved
// tie-break: greater HighestInum wins, then greater CmtNo, then the
// later LEB index (i.e. the later entry in candidates).
func SelectMaster(candidates ...*MasterNode) (*MasterNode, error) {
	var best *MasterNode
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		switch {
		case c.HighestInum > best.HighestInum:
			best = c
		case c.HighestInum == best.HighestInum && c.CmtNo >= best.CmtNo:
			best = c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("ubifs: no valid master node found")
	}
	return best, nil
}
