package fscrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCiphertextTooShort is returned when a filename/symlink ciphertext
// is shorter than one AES block.
var ErrCiphertextTooShort = errors.New("fscrypt: ciphertext shorter than one AES block")

// DecryptFilename reverses AES-256-CBC-CTS (ciphertext stealing) over
// ciphertext, using key (32 bytes) and a zero IV, per fscrypt v1's
// filename encryption. The result is NUL-trimmed.
//
// Go's standard library deliberately has no CTS mode (crypto/cipher
// only ships CBC/CFB/CTR/GCM); CTS is implemented here directly since
// no wire-compatible package in the dependency set offers it.
func DecryptFilename(key, ciphertext []byte) ([]byte, error) {
	plain, err := decryptCBCCTS(key, ciphertext)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(plain, "\x00"), nil
}

// UndecryptableFilename renders ciphertext the way a consumer without
// the master key sees it: base64 of the raw bytes, per spec scenario S5.
func UndecryptableFilename(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// decryptCBCCTS decrypts data that was encrypted with CBC-CTS (CS3
// variant, matching the Linux kernel's cts(cbc(aes)) template): every
// full block before the last two is ordinary CBC; the final two
// (possibly partial) blocks are unswapped and decrypted specially.
func decryptCBCCTS(key, ciphertext []byte) ([]byte, error) {
	blockSize := aes.BlockSize
	if len(ciphertext) < blockSize {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext)%blockSize == 0 {
		iv := make([]byte, blockSize)
		mode := cipher.NewCBCDecrypter(block, iv)
		out := make([]byte, len(ciphertext))
		mode.CryptBlocks(out, ciphertext)
		return out, nil
	}

	// Split into all-but-final-two-blocks (plain CBC) plus the final
	// partial block pair, handled via the CTS swap-and-decrypt.
	numFull := len(ciphertext)/blockSize - 1
	head := ciphertext[:numFull*blockSize]
	tail := ciphertext[numFull*blockSize:]

	iv := make([]byte, blockSize)
	out := make([]byte, 0, len(ciphertext))

	if len(head) > 0 {
		mode := cipher.NewCBCDecrypter(block, iv)
		headOut := make([]byte, len(head))
		mode.CryptBlocks(headOut, head)
		out = append(out, headOut...)
		iv = head[len(head)-blockSize:]
	}

	cLast := tail[:blockSize]
	cPenultimatePartial := tail[blockSize:]
	partialLen := len(cPenultimatePartial)

	// Decrypt C_last directly (ECB) to recover the XOR pad for the
	// stolen ciphertext tail, then reconstruct the full penultimate
	// ciphertext block.
	pad := make([]byte, blockSize)
	block.Decrypt(pad, cLast)

	dn := make([]byte, blockSize)
	copy(dn, pad)
	for i := 0; i < partialLen; i++ {
		dn[i] ^= cPenultimatePartial[i]
	}

	cPenultimateFull := make([]byte, blockSize)
	copy(cPenultimateFull, cPenultimatePartial)
	copy(cPenultimateFull[partialLen:], pad[partialLen:])

	pn := make([]byte, blockSize)
	block.Decrypt(pn, cPenultimateFull)
	for i := range pn {
		pn[i] ^= iv[i]
	}

	out = append(out, pn...)
	out = append(out, dn[:partialLen]...)

	if len(out) != len(ciphertext) {
		return nil, fmt.Errorf("fscrypt: cts decrypt length mismatch: got %d want %d", len(out), len(ciphertext))
	}

	return out, nil
}
