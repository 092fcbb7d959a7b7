// Package keystore manages per-actor RSA keypairs on disk: one PEM private
// key and one PEM public key per actor, generated lazily on first use and
// reloaded thereafter. It has no notion of roles, certificates, or
// revocation — that is internal/registry's job; keystore only ever answers
// "what is actor X's keypair".
package keystore

import (
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apscustody/labcustody/internal/primitives"
)

// Store is a directory of per-actor PEM keypairs, guarded by a single mutex
// since key generation/load is rare compared to envelope and ledger
// traffic.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) paths(actorID string) (privPath, pubPath string) {
	return filepath.Join(s.dir, actorID+".priv.pem"), filepath.Join(s.dir, actorID+".pub.pem")
}

// EnsureKeys loads actorID's keypair from disk, generating and persisting a
// fresh RSA-3072 keypair if none exists yet.
func (s *Store) EnsureKeys(actorID string) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	privPath, pubPath := s.paths(actorID)

	if _, err := os.Stat(privPath); err == nil {
		return s.loadPrivate(privPath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: stat %s: %w", privPath, err)
	}

	priv, err := primitives.GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("keystore: generate keys for %s: %w", actorID, err)
	}

	privPEM, err := primitives.EncodePrivatePEM(priv)
	if err != nil {
		return nil, fmt.Errorf("keystore: encode private key: %w", err)
	}
	pubPEM, err := primitives.EncodePublicPEM(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: encode public key: %w", err)
	}

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("keystore: write %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("keystore: write %s: %w", pubPath, err)
	}
	return priv, nil
}

func (s *Store) loadPrivate(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	priv, err := primitives.DecodePrivatePEM(raw)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", path, err)
	}
	return priv, nil
}

// PrivateKey loads actorID's private key from disk without generating one,
// failing if actorID has never been provisioned. Used by callers (the
// resolver, the service layer) that must not silently mint a keypair for an
// unrecognised actor id.
func (s *Store) PrivateKey(actorID string) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	privPath, _ := s.paths(actorID)
	if _, err := os.Stat(privPath); err != nil {
		return nil, fmt.Errorf("keystore: %s has no provisioned key: %w", actorID, err)
	}
	return s.loadPrivate(privPath)
}

// PublicKey returns actorID's public key, loading it from disk. It does not
// generate a keypair — callers that need a guaranteed keypair should call
// EnsureKeys first (typically done once at actor enrollment).
func (s *Store) PublicKey(actorID string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, pubPath := s.paths(actorID)
	raw, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", pubPath, err)
	}
	return primitives.DecodePublicPEM(raw)
}

// PublicKeyPEM returns the raw PEM bytes of actorID's public key, the form
// the certificate registry enrolls and the seed manifest provisions with.
func (s *Store) PublicKeyPEM(actorID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pubPath := s.paths(actorID)
	return os.ReadFile(pubPath)
}
