package primitives

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortsKeysAtEveryLevel(t *testing.T) {
	in := map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
	}
	out, err := CanonicalJSON(in)
	require.NoError(t, err)
	require.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, string(out))
}

func TestCanonicalJSON_StructFieldOrderIsIgnored(t *testing.T) {
	type pair struct {
		Zeta  string `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	out, err := CanonicalJSON(pair{Zeta: "z", Alpha: "a"})
	require.NoError(t, err)
	require.Equal(t, `{"alpha":"a","zeta":"z"}`, string(out))
}

func TestCanonicalJSON_DoesNotHTMLEscape(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"note": "a<b & c>d"})
	require.NoError(t, err)
	require.Equal(t, `{"note":"a<b & c>d"}`, string(out))
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte("hello world")
	require.Equal(t, data, mustB64RoundTrip(t, data))
}

func mustB64RoundTrip(t *testing.T, b []byte) []byte {
	t.Helper()
	out, err := B64Decode(B64Encode(b))
	require.NoError(t, err)
	return out
}

func TestRSAKeyPairAndSignRoundTrip(t *testing.T) {
	priv, err := GenerateRSAKeyPair()
	require.NoError(t, err)

	privPEM, err := EncodePrivatePEM(priv)
	require.NoError(t, err)
	pubPEM, err := EncodePublicPEM(&priv.PublicKey)
	require.NoError(t, err)

	priv2, err := DecodePrivatePEM(privPEM)
	require.NoError(t, err)
	pub2, err := DecodePublicPEM(pubPEM)
	require.NoError(t, err)

	msg := []byte("sign me")
	sig, err := Sign(priv2, msg)
	require.NoError(t, err)
	require.True(t, Verify(pub2, msg, sig))

	require.False(t, Verify(pub2, []byte("tampered"), sig))
	require.False(t, Verify(pub2, msg, "not-base64!!"))
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	priv, err := GenerateRSAKeyPair()
	require.NoError(t, err)

	key, err := GenerateContentKey()
	require.NoError(t, err)

	wrapped, err := Wrap(&priv.PublicKey, key)
	require.NoError(t, err)

	unwrapped, err := Unwrap(priv, wrapped)
	require.NoError(t, err)
	require.Equal(t, key, unwrapped)

	_, err = Unwrap(priv, "not-base64!!")
	require.ErrorIs(t, err, ErrUnwrapFailed)

	otherPriv, err := GenerateRSAKeyPair()
	require.NoError(t, err)
	_, err = Unwrap(otherPriv, wrapped)
	require.ErrorIs(t, err, ErrUnwrapFailed)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateContentKey()
	require.NoError(t, err)
	nonce, err := GenerateNonce()
	require.NoError(t, err)

	plaintext := []byte("hello")
	aad := []byte(`{"a":"b"}`)

	ct, err := Seal(key, nonce, plaintext, aad)
	require.NoError(t, err)

	pt, err := Open(key, nonce, ct, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	// Bit-flip the ciphertext.
	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0xFF
	_, err = Open(key, nonce, tampered, aad)
	require.ErrorIs(t, err, ErrAeadFailure)

	// Mutated AAD.
	_, err = Open(key, nonce, ct, []byte(`{"a":"c"}`))
	require.ErrorIs(t, err, ErrAeadFailure)

	// Mutated nonce.
	badNonce := append([]byte(nil), nonce...)
	badNonce[0] ^= 0xFF
	_, err = Open(key, badNonce, ct, aad)
	require.ErrorIs(t, err, ErrAeadFailure)
}
