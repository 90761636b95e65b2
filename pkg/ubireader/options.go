// Package ubireader ties the UBI, UBIFS, and fscrypt layers together
// into one top-level decode entry point, and defines the iterator-shaped
// Emitter interface downstream consumers implement to receive decoded
// directory entries and file bodies.
package ubireader

import (
	"github.com/elektrischermoench/ubi-reader/pkg/ulog"
)

// DefaultPEBSize is the physical erase block size used when the caller
// leaves PEBSize zero, and the LEB size of a bare UBIFS image when
// LEBSize is zero. Neither size is autodetected.
const DefaultPEBSize = 128 * 1024

// Options controls how a single decode pass interprets its input,
// as one explicit struct threaded through construction rather than
// ambient global state.
type Options struct {
	PEBSize     int
	LEBSize     int
	StartOffset int64
	EndOffset   int64
	GuessOffset int64

	WarnOnlyBlockReadErrors bool
	IgnoreBlockHeaderErrors bool
	UbootFix                bool

	MasterKey []byte // exactly 64 bytes, or nil if fscrypt isn't in use

	UseDummyDevices    bool
	UseDummySocketFile bool

	Log ulog.View
}

// WithDefaults returns a copy of o with zero-valued fields replaced by
// sane defaults (PEB size, discard logger).
func (o Options) WithDefaults() Options {
	if o.PEBSize == 0 {
		o.PEBSize = DefaultPEBSize
	}
	if o.Log == nil {
		o.Log = ulog.Discard
	}
	return o
}
