package primitives

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
)

// Sign produces a detached RSA-PSS-SHA256 signature over msg, using MGF1-
// SHA256 and the maximum salt length, Base64-encoded.
func Sign(priv *rsa.PrivateKey, msg []byte) (string, error) {
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", err
	}
	return B64Encode(sig), nil
}

// Verify reports whether b64sig is a valid RSA-PSS-SHA256 signature over
// msg under pub. It never returns an error — malformed Base64 or a bad
// signature both simply yield false.
func Verify(pub *rsa.PublicKey, msg []byte, b64sig string) bool {
	sig, err := B64Decode(b64sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(msg)
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	return err == nil
}
