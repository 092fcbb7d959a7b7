package primitives

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrUnwrapFailed is returned by Unwrap when the wrapped key cannot be
// recovered — malformed Base64, ciphertext of the wrong size, or an OAEP
// padding/label mismatch. Callers must not distinguish these sub-causes
// from each other: doing so would give an attacker an oracle on key-unwrap
// failure.
var ErrUnwrapFailed = errors.New("unwrap failed")

// Wrap encrypts a 32-byte content key for pub using RSA-OAEP with
// MGF1-SHA256, SHA-256 hash, and an empty label, Base64-encoded.
func Wrap(pub *rsa.PublicKey, key []byte) (string, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("rsa-oaep wrap: %w", err)
	}
	return B64Encode(ct), nil
}

// Unwrap recovers the 32 raw content-key bytes from a Base64 RSA-OAEP
// wrapping, using priv. Any failure — Base64, size, padding — collapses to
// ErrUnwrapFailed.
func Unwrap(priv *rsa.PrivateKey, b64wrapped string) ([]byte, error) {
	ct, err := B64Decode(b64wrapped)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}
