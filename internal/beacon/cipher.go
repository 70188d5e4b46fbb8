package beacon

import (
	"crypto/aes"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"
)

const (
	KeySize   = 16
	NonceSize = 12
	TagSize   = 4
)

// beaconAD is the fixed associated data bound into every beacon tag.
var beaconAD = []byte{0x11}

func newAEAD(key [KeySize]byte) (ccm.CCM, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := ccm.NewCCM(block, TagSize, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("ccm mode: %w", err)
	}
	return aead, nil
}

// Open authenticates and decrypts sealed, which is the ciphertext followed by
// a 4-byte tag. Any verification failure is reported as ErrAuthenticationFailed.
func Open(key [KeySize]byte, nonce, sealed, ad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce is %d bytes, want %d", len(nonce), NonceSize)
	}
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("sealed payload is %d bytes: %w", len(sealed), ErrTruncated)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}

// Seal encrypts plaintext and appends the 4-byte tag.
func Seal(key [KeySize]byte, nonce, plaintext, ad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce is %d bytes, want %d", len(nonce), NonceSize)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}
