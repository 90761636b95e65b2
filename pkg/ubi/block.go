package ubi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/elektrischermoench/ubi-reader/pkg/blockio"
	"github.com/elektrischermoench/ubi-reader/pkg/ulog"
)

// Block is a single physical erase block that parsed as valid (or was
// force-included under IgnoreBlockHeaderErrors). DataSlice is not
// materialised eagerly; callers read through Volume/LEB instead.
type Block struct {
	PEB int
	EC  *ECHeader
	VID *VIDHeader

	pebSize int
}

// DataOffset is the byte offset within the PEB where this block's data
// area begins.
func (b *Block) DataOffset() int {
	return int(b.EC.DataOffset)
}

// DataLen is the number of data bytes available in this PEB, after
// accounting for the trailing data_pad reserved by the VID header.
func (b *Block) DataLen() int {
	return b.pebSize - b.DataOffset() - int(b.VID.DataPad)
}

// Options controls how the UBI layer tolerates a malformed or unusual
// image.
type Options struct {
	IgnoreBlockHeaderErrors bool
	UbootFix                bool
	Log                     ulog.View
}

// ScanBlocks reads every PEB in br's range and parses EC + VID headers,
// yielding one Block per PEB that is valid (or force-included). Erased /
// unused PEBs (empty VID magic) are skipped silently; PEBs that fail to
// read are recorded via br's own bad-block bookkeeping when
// WarnOnlyBlockReadErrors is set on the reader.
func ScanBlocks(br *blockio.Reader, pebCount int, opts Options) ([]*Block, error) {
	if opts.Log == nil {
		opts.Log = ulog.Discard
	}

	blocks := make([]*Block, 0, pebCount)

	for peb := 0; peb < pebCount; peb++ {
		raw, err := br.ReadBlock(peb)
		if err != nil {
			opts.Log.Warnf("ubi: skipping peb %d: %v", peb, err)
			continue
		}

		ec, err := ParseECHeader(raw)
		if err != nil {
			if opts.UbootFix && peb == 0 {
				// some u-boot writers never touch PEB 0's EC header;
				// treated the same as any other unreadable header below.
			}
			if !opts.IgnoreBlockHeaderErrors {
				opts.Log.Debugf("ubi: peb %d: bad ec header: %v", peb, err)
				continue
			}
			opts.Log.Warnf("ubi: peb %d: bad ec header, including anyway: %v", peb, err)
			ec = &ECHeader{VIDHdrOffset: 64, DataOffset: 4096}
		}

		vidOff := int(ec.VIDHdrOffset)
		if vidOff+64 > len(raw) {
			opts.Log.Warnf("ubi: peb %d: vid header offset out of range", peb)
			continue
		}

		vid, err := ParseVIDHeader(raw[vidOff:])
		if err != nil {
			if err == ErrEmpty {
				continue
			}
			if !opts.IgnoreBlockHeaderErrors {
				opts.Log.Debugf("ubi: peb %d: bad vid header: %v", peb, err)
				continue
			}
			opts.Log.Warnf("ubi: peb %d: bad vid header, including anyway: %v", peb, err)
			vid = new(VIDHeader)
			if rerr := binary.Read(bytes.NewReader(raw[vidOff:vidOff+64]), binary.BigEndian, vid); rerr != nil {
				continue
			}
		}

		blocks = append(blocks, &Block{
			PEB:     peb,
			EC:      ec,
			VID:     vid,
			pebSize: br.PEBSize(),
		})
	}

	return blocks, nil
}

// Image is a set of Blocks sharing one image sequence number.
type Image struct {
	Seq    uint32
	Blocks []*Block
}

// GroupImages buckets blocks by EC.ImageSeq. Under opts.UbootFix, blocks
// with ImageSeq == 0 are merged into whichever image has the most
// blocks (the "dominant" image), rather than forming their own image.
func GroupImages(blocks []*Block, opts Options) ([]*Image, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("ubi: no images: no valid blocks found")
	}

	bySeq := make(map[uint32][]*Block)
	for _, b := range blocks {
		bySeq[b.EC.ImageSeq] = append(bySeq[b.EC.ImageSeq], b)
	}

	if opts.UbootFix {
		if zero, ok := bySeq[0]; ok && len(bySeq) > 1 {
			var dominant uint32
			best := -1
			for seq, bs := range bySeq {
				if seq == 0 {
					continue
				}
				if len(bs) > best {
					best = len(bs)
					dominant = seq
				}
			}
			bySeq[dominant] = append(bySeq[dominant], zero...)
			delete(bySeq, 0)
		}
	}

	images := make([]*Image, 0, len(bySeq))
	for seq, bs := range bySeq {
		images = append(images, &Image{Seq: seq, Blocks: bs})
	}

	return images, nil
}

// Volume is the set of a single image's Blocks sharing one vol_id,
// resolved down to one winning Block per LEB number.
type Volume struct {
	VolID uint32
	// LEBs maps LEB number to the winning block for that slot. Missing
	// keys are holes, read back as zeroes.
	LEBs map[uint32]*Block
	// MaxLEB is one past the highest LEB number claimed by any block in
	// this volume (0 if empty).
	MaxLEB uint32
}

// IsStatic reports whether this volume's blocks are marked as a static
// volume (VolType == VolStatic). A volume with no blocks reports false.
func (v *Volume) IsStatic() bool {
	b, ok := v.LEBs[0]
	return ok && b.VID.VolType == VolStatic
}

// DataSize returns the static volume's total data size as recorded in
// LEB 0's VID header. It is meaningless for dynamic volumes, whose
// DataSize field is always zero on-medium; callers should guard with
// IsStatic first.
func (v *Volume) DataSize() uint32 {
	b, ok := v.LEBs[0]
	if !ok {
		return 0
	}
	return b.VID.DataSize
}

// GroupVolumes buckets an image's blocks by vol_id, and within each
// vol_id resolves duplicate LEB numbers by keeping the block with the
// greatest VID.SQNum. A tie (impossible on a well-formed image) is
// broken by preferring the later PEB index, and a warning is logged.
func GroupVolumes(img *Image, opts Options) []*Volume {
	if opts.Log == nil {
		opts.Log = ulog.Discard
	}

	byVol := make(map[uint32]*Volume)

	for _, b := range img.Blocks {
		vol, ok := byVol[b.VID.VolID]
		if !ok {
			vol = &Volume{VolID: b.VID.VolID, LEBs: make(map[uint32]*Block)}
			byVol[b.VID.VolID] = vol
		}

		existing, claimed := vol.LEBs[b.VID.LNum]
		switch {
		case !claimed:
			vol.LEBs[b.VID.LNum] = b
		case b.VID.SQNum > existing.VID.SQNum:
			vol.LEBs[b.VID.LNum] = b
		case b.VID.SQNum == existing.VID.SQNum:
			opts.Log.Warnf("ubi: vol %d leb %d: duplicate sqnum %d between peb %d and peb %d, keeping later peb",
				b.VID.VolID, b.VID.LNum, b.VID.SQNum, existing.PEB, b.PEB)
			if b.PEB > existing.PEB {
				vol.LEBs[b.VID.LNum] = b
			}
		}

		if b.VID.LNum+1 > vol.MaxLEB {
			vol.MaxLEB = b.VID.LNum + 1
		}
	}

	out := make([]*Volume, 0, len(byVol))
	for _, v := range byVol {
		out = append(out, v)
	}

	return out
}
