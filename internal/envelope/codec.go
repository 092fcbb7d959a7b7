package envelope

import (
	"crypto/rsa"
	"fmt"

	"github.com/apscustody/labcustody/internal/primitives"
)

// ErrNoKeyForRecipient is returned by Open when the envelope carries no
// wrapped content key for the requested recipient.
var ErrNoKeyForRecipient = fmt.Errorf("no wrapped key for recipient")

// EncryptForRecipients builds a fresh hybrid envelope: it generates a new
// 256-bit content key and a fresh nonce, seals plaintext under AAD,
// wraps the content key for every recipient, and zeroizes the content key
// before returning. The returned envelope has no SigLab — the caller (the
// LAB-side of the resolver/service layer) computes and attaches that
// signature, since this package has no notion of "the lab's private key".
func EncryptForRecipients(plaintext []byte, aad AAD, recipients map[string]*rsa.PublicKey) (Envelope, error) {
	if err := aad.Validate(); err != nil {
		return Envelope{}, err
	}
	if len(recipients) == 0 {
		return Envelope{}, fmt.Errorf("encrypt: no recipients")
	}

	key, err := primitives.GenerateContentKey()
	if err != nil {
		return Envelope{}, err
	}
	defer primitives.Zero(key)

	nonce, err := primitives.GenerateNonce()
	if err != nil {
		return Envelope{}, err
	}

	aadBytes, err := aad.CanonicalJSON()
	if err != nil {
		return Envelope{}, err
	}

	ct, err := primitives.Seal(key, nonce, plaintext, aadBytes)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal: %w", err)
	}

	ekFor := make(map[string]string, len(recipients))
	for actorID, pub := range recipients {
		wrapped, err := primitives.Wrap(pub, key)
		if err != nil {
			return Envelope{}, fmt.Errorf("wrap key for %s: %w", actorID, err)
		}
		ekFor[actorID] = wrapped
	}

	return Envelope{
		Alg:        Alg,
		AAD:        aad,
		Nonce:      primitives.B64Encode(nonce),
		Ciphertext: primitives.B64Encode(ct),
		EkFor:      ekFor,
	}, nil
}

// Open recovers the plaintext for recipientID from env, using that
// recipient's wrapped content key and priv to unwrap it. Callers that only
// need the content key (selective-disclosure style verification) should
// use ResolveKey instead and handle the AEAD open themselves, so the key
// can be zeroized by the caller at the right time.
func Open(env Envelope, priv *rsa.PrivateKey, recipientID string) ([]byte, error) {
	key, err := ResolveKey(env, priv, recipientID)
	if err != nil {
		return nil, err
	}
	defer primitives.Zero(key)

	nonce, err := primitives.B64Decode(env.Nonce)
	if err != nil {
		return nil, primitives.ErrAeadFailure
	}
	ct, err := primitives.B64Decode(env.Ciphertext)
	if err != nil {
		return nil, primitives.ErrAeadFailure
	}
	aadBytes, err := env.AAD.CanonicalJSON()
	if err != nil {
		return nil, err
	}

	pt, err := primitives.Open(key, nonce, ct, aadBytes)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// ResolveKey unwraps and returns the raw content key for recipientID,
// using the wrap stored directly under env.EkFor[recipientID]. It does not
// consult grants — that is the resolver's job; this function only ever
// does the direct wrap lookup.
func ResolveKey(env Envelope, priv *rsa.PrivateKey, recipientID string) ([]byte, error) {
	wrapped, ok := env.WrappedKeyFor(recipientID)
	if !ok {
		return nil, ErrNoKeyForRecipient
	}
	key, err := primitives.Unwrap(priv, wrapped)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// UnwrapWith unwraps a content key from an arbitrary Base64 RSA-OAEP wrap
// (e.g. a GRANT's ek_to) rather than one already present on the envelope.
// Used by the resolver when the requester is a delegated party holding a
// grant rather than a direct wrap.
func UnwrapWith(priv *rsa.PrivateKey, wrapped string) ([]byte, error) {
	return primitives.Unwrap(priv, wrapped)
}

// OpenWithKey decrypts env using an already-unwrapped content key — used
// by the resolver once it has resolved K via either the direct wrap or a
// grant's rewrap, so there is exactly one AEAD-open call site regardless of
// which path produced the key.
func OpenWithKey(env Envelope, key []byte) ([]byte, error) {
	nonce, err := primitives.B64Decode(env.Nonce)
	if err != nil {
		return nil, primitives.ErrAeadFailure
	}
	ct, err := primitives.B64Decode(env.Ciphertext)
	if err != nil {
		return nil, primitives.ErrAeadFailure
	}
	aadBytes, err := env.AAD.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	return primitives.Open(key, nonce, ct, aadBytes)
}
