// Package fscrypt implements fscrypt v1 filename and content decryption:
// per-file key derivation from a master key and per-inode nonce, AES-256-CTS
// for filenames and symlink targets, and AES-256-XTS for file data.
package fscrypt

import (
	"crypto/sha512"
	"errors"
	"fmt"
)

// Encryption modes, as stored in Context.ContentsMode / FilenamesMode.
const (
	ModeInvalid  = 0
	ModeAES256XTS = 1
	ModeAES256CTS = 4
)

// MasterKeySize is the fixed size of the master key material fscrypt
// v1 expects (FS_MAX_KEY_SIZE in the reference kernel).
const MasterKeySize = 64

// Context is the per-inode encryption policy, stored as the inode's
// "c" xattr.
type Context struct {
	Format         uint8
	ContentsMode   uint8
	FilenamesMode  uint8
	Flags          uint8
	KeyDescriptor  [8]byte
	Nonce          [16]byte
}

// ErrUnsupportedVersion is returned for any Context.Format other than 1.
var ErrUnsupportedVersion = errors.New("fscrypt: unsupported context format")

// ErrKeyMismatch is returned when a master key's descriptor doesn't
// match the one recorded in a Context.
var ErrKeyMismatch = errors.New("fscrypt: master key descriptor mismatch")

const contextWireSize = 1 + 1 + 1 + 1 + 8 + 16

// ParseContext decodes a raw "c" xattr payload into a Context.
func ParseContext(buf []byte) (*Context, error) {
	if len(buf) < contextWireSize {
		return nil, fmt.Errorf("fscrypt: context too short: %d bytes", len(buf))
	}

	ctx := &Context{
		Format:        buf[0],
		ContentsMode:  buf[1],
		FilenamesMode: buf[2],
		Flags:         buf[3],
	}
	copy(ctx.KeyDescriptor[:], buf[4:12])
	copy(ctx.Nonce[:], buf[12:28])

	if ctx.Format != 1 {
		return nil, ErrUnsupportedVersion
	}

	return ctx, nil
}

// MasterKeyDescriptor computes the 8-byte identity of a master key: the
// first 8 bytes of SHA-512(SHA-512(masterKey)).
func MasterKeyDescriptor(masterKey []byte) [8]byte {
	first := sha512.Sum512(masterKey)
	second := sha512.Sum512(first[:])
	var desc [8]byte
	copy(desc[:], second[:8])
	return desc
}

// VerifyMasterKey checks that masterKey is the key this Context was
// encrypted under.
func VerifyMasterKey(ctx *Context, masterKey []byte) error {
	if len(masterKey) != MasterKeySize {
		return fmt.Errorf("fscrypt: master key must be %d bytes, got %d", MasterKeySize, len(masterKey))
	}
	got := MasterKeyDescriptor(masterKey)
	if got != ctx.KeyDescriptor {
		return ErrKeyMismatch
	}
	return nil
}
