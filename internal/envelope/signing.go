package envelope

import (
	"crypto/rsa"
	"fmt"

	"github.com/apscustody/labcustody/internal/primitives"
)

// SigningMessage builds the exact byte sequence the lab signature is over:
// SHA-256(ciphertext bytes) ∥ canonical_json(aad). Computing it here, once,
// keeps the signature independent of Base64 encoding choices in practice:
// every caller that signs or verifies a lab signature goes through this
// function instead of re-deriving the message.
func (e Envelope) SigningMessage() ([]byte, error) {
	ct, err := primitives.B64Decode(e.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("signing message: decode ciphertext: %w", err)
	}
	aadBytes, err := e.AAD.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	digest := primitives.SHA256(ct)
	msg := make([]byte, 0, len(digest)+len(aadBytes))
	msg = append(msg, digest...)
	msg = append(msg, aadBytes...)
	return msg, nil
}

// SignLab computes sig_lab for e and returns a copy of e with it attached.
// e itself is never mutated — envelopes are treated as immutable records
// throughout the codebase once constructed.
func (e Envelope) SignLab(labPriv *rsa.PrivateKey) (Envelope, error) {
	msg, err := e.SigningMessage()
	if err != nil {
		return Envelope{}, err
	}
	sig, err := primitives.Sign(labPriv, msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign lab envelope: %w", err)
	}
	out := e
	out.SigLab = sig
	return out, nil
}

// VerifyLab reports whether e.SigLab is a valid signature over e's
// ciphertext+AAD under labPub.
func (e Envelope) VerifyLab(labPub *rsa.PublicKey) bool {
	msg, err := e.SigningMessage()
	if err != nil {
		return false
	}
	return primitives.Verify(labPub, msg, e.SigLab)
}

// CiphertextHash returns hex(SHA-256(ciphertext bytes)), the exact form
// the ledger's PUBLISH_REPORT.hash field stores.
func (e Envelope) CiphertextHash() (string, error) {
	ct, err := primitives.B64Decode(e.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext hash: decode: %w", err)
	}
	return fmt.Sprintf("%x", primitives.SHA256(ct)), nil
}
