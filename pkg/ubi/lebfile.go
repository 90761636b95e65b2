package ubi

import (
	"github.com/elektrischermoench/ubi-reader/pkg/blockio"
)

// LEBFile presents a Volume's data area as a contiguous logical byte
// stream, without ever materialising more than one LEB at a time.
// Callers address the volume by logical offset and never see PEB
// boundaries.
type LEBFile struct {
	br      *blockio.Reader
	vol     *Volume
	lebSize int
}

// NewLEBFile wraps vol so it can be read as one contiguous stream. The
// leb size passed to a caller should have already been computed as
// pebSize - dataOffset - dataPad for the blocks in this volume (static
// per-image in practice, since all PEBs in a UBI image share geometry).
func NewLEBFile(br *blockio.Reader, vol *Volume, lebSize int) *LEBFile {
	return &LEBFile{br: br, vol: vol, lebSize: lebSize}
}

// LEBSize returns the usable byte size of one logical erase block.
func (f *LEBFile) LEBSize() int { return f.lebSize }

// ReadLEB returns the full contents of logical erase block index, or a
// zero-filled slice if no PEB currently claims that LEB (a hole).
func (f *LEBFile) ReadLEB(index uint32) ([]byte, error) {
	b, ok := f.vol.LEBs[index]
	if !ok {
		return make([]byte, f.lebSize), nil
	}

	raw, err := f.br.ReadBlock(b.PEB)
	if err != nil {
		return nil, err
	}

	start := b.DataOffset()
	end := start + f.lebSize
	if end > len(raw) {
		end = len(raw)
	}
	out := make([]byte, f.lebSize)
	copy(out, raw[start:end])
	return out, nil
}

// Read translates a logical [offset, offset+length) span into one or
// more LEB reads and concatenates them, substituting zeroes for holes.
func (f *LEBFile) Read(offset int64, length int) ([]byte, error) {
	out := make([]byte, 0, length)

	for length > 0 {
		lebIndex := uint32(offset / int64(f.lebSize))
		lebOffset := int(offset % int64(f.lebSize))

		leb, err := f.ReadLEB(lebIndex)
		if err != nil {
			return nil, err
		}

		n := f.lebSize - lebOffset
		if n > length {
			n = length
		}

		out = append(out, leb[lebOffset:lebOffset+n]...)
		offset += int64(n)
		length -= n
	}

	return out, nil
}
