package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/apscustody/labcustody/internal/envelope"
)

// onDiskStore is the persisted shape of Store.
type onDiskStore struct {
	Envelopes   map[string]envelope.Envelope `json:"envelopes"`
	SoftRevoked map[string][]string          `json:"softRevoked"`
}

// Store holds the envelope table and the soft-revocation overlay, the two
// pieces of mutable state the resolver needs besides the ledger and the CA
// registry. A single mutex protects both — the store is tiny compared to
// ledger throughput, the same coarse-grained tradeoff the CA registry makes.
type Store struct {
	path string
	mu   sync.Mutex

	envelopes   map[string]envelope.Envelope
	softRevoked map[string]map[string]bool
}

// OpenStore loads the store at path, or starts empty if absent.
func OpenStore(path string) (*Store, error) {
	s := &Store{
		path:        path,
		envelopes:   map[string]envelope.Envelope{},
		softRevoked: map[string]map[string]bool{},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("resolver store: read %s: %w", path, err)
	}

	var d onDiskStore
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("resolver store: parse %s: %w", path, err)
	}
	if d.Envelopes != nil {
		s.envelopes = d.Envelopes
	}
	for reportID, actors := range d.SoftRevoked {
		set := map[string]bool{}
		for _, a := range actors {
			set[a] = true
		}
		s.softRevoked[reportID] = set
	}
	return s, nil
}

func (s *Store) save() error {
	d := onDiskStore{
		Envelopes:   s.envelopes,
		SoftRevoked: map[string][]string{},
	}
	for reportID, set := range s.softRevoked {
		for actorID := range set {
			d.SoftRevoked[reportID] = append(d.SoftRevoked[reportID], actorID)
		}
	}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("resolver store: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("resolver store: write %s: %w", s.path, err)
	}
	return nil
}

// PutEnvelope stores env under reportID, overwriting any prior envelope
// for that id.
func (s *Store) PutEnvelope(reportID string, env envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes[reportID] = env
	return s.save()
}

// Envelope returns the envelope stored under reportID, if any.
func (s *Store) Envelope(reportID string) (envelope.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envelopes[reportID]
	return env, ok
}

// IsSoftRevoked reports whether actorID has been soft-revoked from
// reportID.
func (s *Store) IsSoftRevoked(reportID, actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softRevoked[reportID][actorID]
}

// SoftRevoke adds actorID to reportID's soft-revocation set.
func (s *Store) SoftRevoke(reportID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.softRevoked[reportID] == nil {
		s.softRevoked[reportID] = map[string]bool{}
	}
	s.softRevoked[reportID][actorID] = true
	return s.save()
}

// ClearSoftRevoke removes actorID from reportID's soft-revocation set, if
// present. Used when a patient re-shares with a previously soft-revoked
// target.
func (s *Store) ClearSoftRevoke(reportID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set := s.softRevoked[reportID]; set != nil {
		delete(set, actorID)
	}
	return s.save()
}
