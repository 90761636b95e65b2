package fscrypt

import "crypto/aes"

// FileKey is the 64-byte per-file key derived from a master key and an
// inode's nonce. Its first 32 bytes serve as the AES-256 key for
// filename CTS operations; the full 64 bytes are used as the two XTS
// half-keys for content.
type FileKey [64]byte

// DeriveFileKey expands masterKey (64 bytes) and the inode's nonce into
// a per-file key, following the fscrypt v1 scheme: AES-128-ECB, keyed
// by the first 16 bytes of the master key, encrypts four nonce-derived
// blocks to produce 64 bytes of key material.
func DeriveFileKey(masterKey []byte, nonce [16]byte) (FileKey, error) {
	var key FileKey

	block, err := aes.NewCipher(masterKey[:16])
	if err != nil {
		return key, err
	}

	for i := 0; i < 4; i++ {
		var plain [16]byte
		copy(plain[:], nonce[:])
		plain[15] ^= byte(i)

		block.Encrypt(key[i*16:(i+1)*16], plain[:])
	}

	return key, nil
}

// ContentsKey returns the 64-byte key used for AES-256-XTS file data
// encryption (two concatenated 32-byte AES-256 half-keys).
func (k FileKey) ContentsKey() []byte { return k[:] }

// FilenamesKey returns the 32-byte AES-256 key used for CTS filename
// and symlink-target decryption.
func (k FileKey) FilenamesKey() []byte { return k[:32] }
