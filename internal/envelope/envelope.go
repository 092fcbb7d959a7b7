package envelope

import "fmt"

// Alg is the fixed algorithm tag every envelope carries.
const Alg = "AES-256-GCM+RSA-OAEP"

// Envelope is the immutable record stored per reportId.
type Envelope struct {
	Alg        string            `json:"alg"`
	AAD        AAD               `json:"aad"`
	Nonce      string            `json:"nonce"`
	Ciphertext string            `json:"ciphertext"`
	EkFor      map[string]string `json:"ek_for"`
	SigLab     string            `json:"sig_lab,omitempty"`
}

// WrappedKeyFor returns the Base64 RSA-OAEP wrapping of the content key
// for actorID, and whether one is present.
func (e Envelope) WrappedKeyFor(actorID string) (string, bool) {
	w, ok := e.EkFor[actorID]
	return w, ok
}

// Validate checks structural invariants that must hold before an
// envelope is ever handed to the AEAD layer: a recognised algorithm tag,
// a well-formed AAD, and at least one recipient.
func (e Envelope) Validate() error {
	if e.Alg != Alg {
		return fmt.Errorf("envelope: unexpected alg %q", e.Alg)
	}
	if err := e.AAD.Validate(); err != nil {
		return err
	}
	if len(e.EkFor) == 0 {
		return fmt.Errorf("envelope: no recipients")
	}
	return nil
}
