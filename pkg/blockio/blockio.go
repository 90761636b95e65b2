// Package blockio provides random-access reads over a host file (or any
// io.ReaderAt), sliced to a [start, end) window and addressed in
// fixed-size physical-erase-block units.
//
// It is the single seam between "bytes on a host file" and "bytes
// belonging to a logical structure", so every higher layer can pretend
// it owns a clean, zero-based address space.
package blockio

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrOutOfRange is returned when a read would cross the configured end
// offset, or start beyond it.
var ErrOutOfRange = errors.New("blockio: read out of range")

// BlockReadError wraps a low-level read failure with the PEB index that
// was being read when it happened.
type BlockReadError struct {
	PEB int
	Err error
}

func (e *BlockReadError) Error() string {
	return fmt.Sprintf("blockio: read error on PEB %d: %v", e.PEB, e.Err)
}

func (e *BlockReadError) Unwrap() error { return e.Err }

// Reader is a read-only, random-access view over a byte source, bounded
// to [Start, End) and addressed in PEBSize-sized blocks.
type Reader struct {
	src io.ReaderAt

	pebSize int
	start   int64
	end     int64 // -1 means "unbounded / determined by source length"

	// WarnOnlyBlockReadErrors, when true, makes ReadBlock substitute
	// zero-filled bytes for a failed read instead of returning an error.
	// The caller is expected to consult BadBlocks afterwards.
	WarnOnlyBlockReadErrors bool

	badBlocks map[int]struct{}
}

// Config describes how to slice a byte source into PEB-addressed space.
type Config struct {
	PEBSize                 int
	Start                   int64
	End                     int64 // 0 means unbounded
	WarnOnlyBlockReadErrors bool
}

// New constructs a Reader over src using cfg. PEBSize must be positive.
func New(src io.ReaderAt, cfg Config) (*Reader, error) {
	if cfg.PEBSize <= 0 {
		return nil, fmt.Errorf("blockio: invalid PEB size %d", cfg.PEBSize)
	}
	if cfg.End != 0 && cfg.End <= cfg.Start {
		return nil, fmt.Errorf("blockio: end offset %d not after start offset %d", cfg.End, cfg.Start)
	}

	end := cfg.End
	if end == 0 {
		end = -1
	}

	return &Reader{
		src:                     src,
		pebSize:                 cfg.PEBSize,
		start:                   cfg.Start,
		end:                     end,
		WarnOnlyBlockReadErrors: cfg.WarnOnlyBlockReadErrors,
		badBlocks:               make(map[int]struct{}),
	}, nil
}

// PEBSize returns the configured physical erase block size.
func (r *Reader) PEBSize() int { return r.pebSize }

// PEBCount returns how many whole PEBs fit within [start, end). The
// count comes from end-start only; for an unbounded reader (no end
// offset configured) it returns an error, since the length of src is
// not consulted.
func (r *Reader) PEBCount() (int, error) {
	if r.end < 0 {
		return 0, errors.New("blockio: unbounded reader has no fixed PEB count")
	}
	span := r.end - r.start
	return int(span / int64(r.pebSize)), nil
}

// withinRange reports whether [off, off+n) lies inside [start, end).
func (r *Reader) withinRange(off int64, n int64) bool {
	if off < 0 {
		return false
	}
	if r.end >= 0 && off+n > r.end {
		return false
	}
	return true
}

// Read reads length bytes at the logical offset (relative to Start) from
// the underlying source. Reads beyond the configured end fail with
// ErrOutOfRange.
func (r *Reader) Read(offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrOutOfRange
	}

	abs := r.start + offset
	if !r.withinRange(abs, int64(length)) {
		return nil, ErrOutOfRange
	}

	buf := make([]byte, length)
	n, err := r.src.ReadAt(buf, abs)
	if err != nil && !(err == io.EOF && n == length) {
		return nil, fmt.Errorf("blockio: read %d bytes at %d: %w", length, abs, err)
	}

	return buf, nil
}

// ReadBlock returns exactly PEBSize bytes for the PEB at index peb. On a
// read failure, if WarnOnlyBlockReadErrors is set the PEB is recorded in
// BadBlocks and a zero-filled block is returned instead of an error.
func (r *Reader) ReadBlock(peb int) ([]byte, error) {
	if peb < 0 {
		return nil, ErrOutOfRange
	}

	buf, err := r.Read(int64(peb)*int64(r.pebSize), r.pebSize)
	if err != nil {
		if r.WarnOnlyBlockReadErrors {
			r.badBlocks[peb] = struct{}{}
			return make([]byte, r.pebSize), nil
		}
		return nil, &BlockReadError{PEB: peb, Err: err}
	}

	return buf, nil
}

// BadBlocks returns the sorted set of PEB indices that failed to read
// and were zero-substituted under WarnOnlyBlockReadErrors.
func (r *Reader) BadBlocks() []int {
	out := make([]int, 0, len(r.badBlocks))
	for peb := range r.badBlocks {
		out = append(out, peb)
	}
	sort.Ints(out)
	return out
}

// Close releases the underlying source if it implements io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
