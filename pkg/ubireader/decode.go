package ubireader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elektrischermoench/ubi-reader/pkg/blockio"
	"github.com/elektrischermoench/ubi-reader/pkg/ubi"
	"github.com/elektrischermoench/ubi-reader/pkg/ubifs"
)

// UBI images begin with the EC header magic "UBI#"; bare UBIFS images
// begin directly with the node common-header magic.
const (
	formatUBI = iota
	formatBareUBIFS
)

// masterLEBPrimary and masterLEBAlt are the two fixed LEBs that
// carry master node copies, per the reference UBIFS layout (LEB 0
// carries the superblock node).
const (
	superblockLEB    = 0
	masterLEBPrimary = 1
	masterLEBAlt     = 2
)

// Decode runs one full decode pass over src and pushes every discovered
// filesystem entity to em. It fails on structural errors (no images, no
// master node, no index root), and also when a file body or symlink
// target cannot be reassembled; no option turns those reassembly errors
// into warnings. A failed PEB read under WarnOnlyBlockReadErrors, a
// failed branch read, a DENT naming a missing inode or carrying an
// unsafe name, and a missing or mismatched master key for a file body
// or symlink target are reported as Warning events instead; a name that
// cannot be decrypted falls back to its base64 rendering without one.
//
// When StartOffset is zero, GuessOffset is used as the start of the
// image; the magic is probed at that one offset, without scanning.
func Decode(src io.ReaderAt, opts Options, em Emitter) error {
	opts = opts.WithDefaults()
	if opts.StartOffset == 0 {
		opts.StartOffset = opts.GuessOffset
	}

	format, err := detectFormat(src, opts)
	if err != nil {
		return err
	}

	var lr ubifs.LEBReader
	var badBlocks []int

	switch format {
	case formatUBI:
		lf, bb, derr := decodeUBIVolume(src, opts)
		if derr != nil {
			return derr
		}
		lr = lf
		badBlocks = bb
	case formatBareUBIFS:
		lebSize := opts.LEBSize
		if lebSize == 0 {
			lebSize = DefaultPEBSize
		}
		br, berr := blockio.New(src, blockio.Config{
			PEBSize:                 lebSize,
			Start:                   opts.StartOffset,
			End:                     opts.EndOffset,
			WarnOnlyBlockReadErrors: opts.WarnOnlyBlockReadErrors,
		})
		if berr != nil {
			return berr
		}
		lr = &flatLEBReader{br: br, lebSize: lebSize}
	default:
		return fmt.Errorf("ubireader: unrecognized image format")
	}

	for _, peb := range badBlocks {
		dispatch(em, Event{Kind: KindWarning, WarningKind: WarnBlockReadError, Detail: fmt.Sprintf("peb %d", peb)})
	}

	mst, err := readMaster(lr)
	if err != nil {
		return err
	}

	tree, err := ubifs.Walk(lr, mst.RootLNum, mst.RootOffs, mst.RootLen)
	if err != nil {
		return err
	}

	for _, ne := range tree.BadBlocks {
		dispatch(em, Event{Kind: KindWarning, WarningKind: WarnBadIndex, Detail: ne.Error()})
	}

	w := &walker{
		tree:      tree,
		em:        em,
		opts:      opts,
		seenInode: make(map[uint32]string),
	}

	return w.emitDir(ubifs.RootInum, "/", nil)
}

// flatLEBReader addresses a bare UBIFS image (no UBI wrapper) directly:
// the image is already one contiguous, fixed-size-LEB stream.
type flatLEBReader struct {
	br      *blockio.Reader
	lebSize int
}

func (f *flatLEBReader) Read(offset int64, length int) ([]byte, error) {
	return f.br.Read(offset, length)
}

func (f *flatLEBReader) LEBSize() int { return f.lebSize }

func decodeUBIVolume(src io.ReaderAt, opts Options) (*ubi.LEBFile, []int, error) {
	br, err := blockio.New(src, blockio.Config{
		PEBSize:                 opts.PEBSize,
		Start:                   opts.StartOffset,
		End:                     opts.EndOffset,
		WarnOnlyBlockReadErrors: opts.WarnOnlyBlockReadErrors,
	})
	if err != nil {
		return nil, nil, err
	}

	pebCount, err := br.PEBCount()
	if err != nil {
		return nil, nil, fmt.Errorf("ubireader: end_offset is required to bound a UBI scan: %w", err)
	}

	ubiOpts := ubi.Options{
		IgnoreBlockHeaderErrors: opts.IgnoreBlockHeaderErrors,
		UbootFix:                opts.UbootFix,
		Log:                     opts.Log,
	}

	result, err := ubi.Decode(br, pebCount, ubiOpts)
	if err != nil {
		return nil, nil, err
	}

	img, err := result.DominantImage()
	if err != nil {
		return nil, nil, err
	}

	vols := result.Volumes(img, ubiOpts)
	vol, err := ubi.VolumeByID(vols, 0)
	if err != nil {
		if len(vols) == 0 {
			return nil, nil, ubi.ErrNoVolumes
		}
		vol = vols[0]
	}

	lebSize := opts.LEBSize
	if lebSize == 0 && len(img.Blocks) > 0 {
		b := img.Blocks[0]
		lebSize = b.DataLen()
	}

	return ubi.NewLEBFile(br, vol, lebSize), br.BadBlocks(), nil
}

func readMaster(lr ubifs.LEBReader) (*ubifs.MasterNode, error) {
	var candidates []*ubifs.MasterNode

	for _, lnum := range []uint32{masterLEBPrimary, masterLEBAlt} {
		n, err := ubifs.ReadNode(lr, lnum, 0)
		if err != nil || n.Mst == nil {
			continue
		}
		candidates = append(candidates, n.Mst)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("ubifs: no valid master node found in leb %d or %d", masterLEBPrimary, masterLEBAlt)
	}

	return ubifs.SelectMaster(candidates...)
}

func detectFormat(src io.ReaderAt, opts Options) (int, error) {
	offset := opts.StartOffset
	if offset == 0 {
		offset = opts.GuessOffset
	}

	buf := make([]byte, 4)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return 0, fmt.Errorf("ubireader: reading magic at offset %d: %w", offset, err)
	}

	magic := binary.BigEndian.Uint32(buf)
	switch magic {
	case ubi.ECHeaderMagic:
		return formatUBI, nil
	}

	magicLE := binary.LittleEndian.Uint32(buf)
	if magicLE == ubifs.NodeMagic {
		return formatBareUBIFS, nil
	}

	return 0, fmt.Errorf("ubireader: unrecognized magic at offset %d", offset)
}
