package primitives

import (
	"encoding/base64"
	"fmt"
)

// B64Encode returns the standard, padded, ASCII-only Base64 encoding of b.
func B64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// B64Decode decodes standard, padded Base64 text.
func B64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}
