package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ContentKeySize is the size, in bytes, of the symmetric content key used
// to seal a report (AES-256).
const ContentKeySize = 32

// NonceSize is the size, in bytes, of the AES-GCM nonce.
const NonceSize = 12

// ErrAeadFailure is returned by Open when GCM authentication fails — a
// tampered ciphertext, nonce, or AAD. Like ErrUnwrapFailed, callers must
// not distinguish it from a bad key.
var ErrAeadFailure = errors.New("aead authentication failed")

// GenerateContentKey returns a fresh random 256-bit content key.
func GenerateContentKey() ([]byte, error) {
	key := make([]byte, ContentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate content key: %w", err)
	}
	return key, nil
}

// GenerateNonce returns a fresh random 12-byte GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts plaintext under key/nonce, binding aad as AES-256-GCM
// additional authenticated data.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("seal: nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext under key/nonce/aad. Authentication failure
// returns ErrAeadFailure.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrAeadFailure
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAeadFailure
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
