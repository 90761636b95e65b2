package ubifs

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	lzo "github.com/anchore/go-lzo"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCompression is returned for a ComprType this package
// doesn't recognize.
var ErrUnknownCompression = errors.New("ubifs: unknown compression type")

// DecompressError wraps a codec failure with the compression type that
// produced it, so callers can tell a corrupt payload from a bad codec.
type DecompressError struct {
	ComprType uint16
	Err       error
}

func (e *DecompressError) Error() string {
	return fmt.Sprintf("ubifs: decompress (type %d): %v", e.ComprType, e.Err)
}

func (e *DecompressError) Unwrap() error { return e.Err }

// Decompress expands a node's payload according to its ComprType.
// decodedLen is the expected output length (DataNode.Size or the
// inode's inline data length); it bounds LZO/ZLIB/ZSTD output so a
// corrupt stream can't allocate unbounded memory.
func Decompress(comprType uint16, payload []byte, decodedLen int) ([]byte, error) {
	switch comprType {
	case ComprNone:
		return payload, nil

	case ComprLZO:
		out, err := lzo.Decompress1X(bytes.NewReader(payload), len(payload), decodedLen)
		if err != nil {
			return nil, &DecompressError{comprType, err}
		}
		return out, nil

	case ComprZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, &DecompressError{comprType, err}
		}
		defer zr.Close()
		out := make([]byte, 0, decodedLen)
		buf := &bytes.Buffer{}
		if _, err := io.CopyN(buf, zr, int64(decodedLen)); err != nil && err != io.EOF {
			return nil, &DecompressError{comprType, err}
		}
		out = buf.Bytes()
		return out, nil

	case ComprZstd:
		zr, err := zstd.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, &DecompressError{comprType, err}
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, int64(decodedLen)))
		if err != nil {
			return nil, &DecompressError{comprType, err}
		}
		return out, nil

	default:
		return nil, &DecompressError{comprType, ErrUnknownCompression}
	}
}
