// Package registry implements the certificate authority: actor public-key
// enrollment and revocation. It is advisory, exactly as the access resolver
// treats it — the binding that actually matters cryptographically is the
// envelope+ledger hash+signature chain in internal/envelope and
// internal/ledger; the registry only ever answers "is this actor's key
// still trusted".
package registry

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apscustody/labcustody/internal/primitives"
)

// Cert is one enrolled actor public key.
type Cert struct {
	ActorID   string `json:"actorId"`
	PubPEM    string `json:"pubPem"`
	IssuedAt  int64  `json:"issuedAt"`
	Valid     bool   `json:"valid"`
}

// CRLEntry is one chronological revocation record.
type CRLEntry struct {
	ActorID   string `json:"actorId"`
	RevokedAt int64  `json:"revokedAt"`
}

// onDisk is the JSON persisted representation of a Registry.
type onDisk struct {
	Certs map[string]Cert `json:"certs"`
	CRL   []CRLEntry      `json:"crl"`
}

// Registry is the CA/CRL store: a map of enrolled certs and a chronological
// revocation list, guarded by a single mutex and persisted as one JSON file
// on every mutation — the store is small relative to ledger throughput, the
// same coarse-grained tradeoff the ledger's envelope store makes.
type Registry struct {
	path string
	mu   sync.Mutex

	certs map[string]Cert
	crl   []CRLEntry
}

// nowFunc is overridable in tests.
var nowFunc = func() int64 { return time.Now().Unix() }

// Open loads the registry at path, or starts an empty one if the file does
// not yet exist.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, certs: map[string]Cert{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}

	var d onDisk
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	if d.Certs != nil {
		r.certs = d.Certs
	}
	r.crl = d.CRL
	return r, nil
}

func (r *Registry) save() error {
	d := onDisk{Certs: r.certs, CRL: r.crl}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0o600); err != nil {
		return fmt.Errorf("registry: write %s: %w", r.path, err)
	}
	return nil
}

// Enroll upserts actorID's public key and marks it valid. pub is PEM-encoded
// SubjectPublicKeyInfo, the same form internal/keystore produces.
func (r *Registry) Enroll(actorID string, pubPEM []byte) error {
	if _, err := primitives.DecodePublicPEM(pubPEM); err != nil {
		return fmt.Errorf("registry: enroll %s: %w", actorID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.certs[actorID] = Cert{
		ActorID:  actorID,
		PubPEM:   string(pubPEM),
		IssuedAt: nowFunc(),
		Valid:    true,
	}
	return r.save()
}

// Revoke appends a CRL entry for actorID and flips its cert invalid, if
// enrolled. Revoking an actor that was never enrolled still records the CRL
// entry — the cert presence and the CRL are deliberately independent lists.
func (r *Registry) Revoke(actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.crl = append(r.crl, CRLEntry{ActorID: actorID, RevokedAt: nowFunc()})
	if c, ok := r.certs[actorID]; ok {
		c.Valid = false
		r.certs[actorID] = c
	}
	return r.save()
}

// Get returns the enrolled certificate for actorID, if any.
func (r *Registry) Get(actorID string) (Cert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[actorID]
	return c, ok
}

// PublicKey returns actorID's public key, decoded from its enrolled cert.
func (r *Registry) PublicKey(actorID string) (*rsa.PublicKey, error) {
	c, ok := r.Get(actorID)
	if !ok {
		return nil, fmt.Errorf("registry: %s is not enrolled", actorID)
	}
	return primitives.DecodePublicPEM([]byte(c.PubPEM))
}

// InCRL reports whether actorID has ever been revoked. A linear scan is
// fine at CRL sizes this service expects; it mirrors the prototype's own
// linear in_crl check.
func (r *Registry) InCRL(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.crl {
		if e.ActorID == actorID {
			return true
		}
	}
	return false
}

// CertCount returns the number of enrolled certs, for health reporting.
func (r *Registry) CertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.certs)
}

// RevokedCount returns the number of CRL entries, for health reporting.
func (r *Registry) RevokedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.crl)
}
