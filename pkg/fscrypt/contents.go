package fscrypt

import (
	"crypto/aes"

	"golang.org/x/crypto/xts"
)

// DecryptBlock decrypts one UBIFS data block (up to 4096 bytes) in
// place-equivalent fashion, using AES-256-XTS with the file's content
// key and the block index as the XTS sector tweak.
func DecryptBlock(key []byte, blockIndex uint32, ciphertext []byte) ([]byte, error) {
	cipher, err := xts.NewCipher(aes.NewCipher, key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.Decrypt(plain, ciphertext, uint64(blockIndex))
	return plain, nil
}
