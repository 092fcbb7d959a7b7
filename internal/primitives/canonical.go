// Package primitives implements the cryptographic building blocks the rest
// of labcustody is built on: canonical JSON, Base64 codecs, SHA-256, RSA-3072
// key generation and PEM I/O, RSA-PSS signatures, RSA-OAEP key wrap, and
// AES-256-GCM content encryption.
//
// Every function here is total: invalid input returns an error (or, for
// Verify, a plain false) rather than panicking. Nothing in this package
// knows about reports, ledgers, or actors — it is the substrate the other
// components sign, hash, and encrypt with.
package primitives

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serialises v the way every signed or hashed structured
// value in labcustody must be serialised: UTF-8, map keys sorted
// lexicographically at every nesting level, no insignificant whitespace,
// no trailing newline.
//
// Go's encoding/json sorts map keys, but only for values that are actually
// map-typed at marshal time — a struct is emitted in declared-field order,
// not alphabetical. Since structs are the natural Go representation for
// envelopes and ledger events, CanonicalJSON round-trips once through
// interface{} first: marshal, then unmarshal into a generic any (JSON
// objects become map[string]interface{}), then marshal again. The second
// pass is what gives the byte-stable, key-sorted-at-every-level guarantee
// regardless of how the caller's Go type happens to declare its fields.
//
// Both passes disable HTML-escaping: encoding/json's default Marshal turns
// '<', '>', and '&' into </>/&, which would diverge from a
// plain json.dumps(sort_keys=True) in any free-text AAD field containing
// those characters. encodeJSON keeps the byte encoding ASCII-safe to hash
// and sign the same way regardless of which language produced it.
func CanonicalJSON(v any) ([]byte, error) {
	first, err := encodeJSON(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}

	var generic any
	if err := json.Unmarshal(first, &generic); err != nil {
		return nil, fmt.Errorf("canonical json: normalize: %w", err)
	}

	out, err := encodeJSON(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical json: re-marshal: %w", err)
	}
	return out, nil
}

// encodeJSON marshals v with HTML-escaping disabled and the trailing
// newline json.Encoder always appends trimmed off.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256 returns the raw 32-byte digest of data.
func SHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
