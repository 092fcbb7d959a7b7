// Package service wires the ledger, certificate registry, access resolver,
// guardrails, ledger-tail hub, and keystore into the operations surface: a
// transport-agnostic set of plain Go methods a binding (cmd/labcustody's
// HTTP layer, or any other caller) drives directly.
package service

import (
	"crypto/rsa"
	"fmt"

	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/config"
	"github.com/apscustody/labcustody/internal/envelope"
	"github.com/apscustody/labcustody/internal/guardrails"
	"github.com/apscustody/labcustody/internal/health"
	"github.com/apscustody/labcustody/internal/keystore"
	"github.com/apscustody/labcustody/internal/ledger"
	"github.com/apscustody/labcustody/internal/ledgertail"
	"github.com/apscustody/labcustody/internal/registry"
	"github.com/apscustody/labcustody/internal/resolver"
)

// Service is the long-lived object holding every collaborator the
// operations surface needs.
type Service struct {
	log *zap.SugaredLogger

	ledger   *ledger.Ledger
	registry *registry.Registry
	keys     *keystore.Store
	resolver *resolver.Resolver
	tail     *ledgertail.Hub
	health   *health.Checker

	strict bool
	done   chan struct{}
}

// New performs the service's startup sequence:
//  1. Open the ledger.
//  2. Open the certificate registry.
//  3. Open the envelope/soft-revocation store.
//  4. Open the actor keystore.
//  5. Wire the access resolver from 1–4.
//  6. Start the ledger-tail hub and its pump goroutine.
//  7. Build the health checker.
//  8. Provision any actors declared in the seed manifest.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Service, error) {
	s := &Service{log: log, strict: cfg.Strict, done: make(chan struct{})}

	log.Infow("opening ledger", "path", cfg.LedgerPath)
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	s.ledger = l

	log.Infow("opening certificate registry", "path", cfg.RegistryPath)
	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	s.registry = reg

	log.Infow("opening envelope store", "path", cfg.StorePath)
	store, err := resolver.OpenStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening envelope store: %w", err)
	}

	log.Infow("opening actor keystore", "dir", cfg.KeysDir)
	keys, err := keystore.Open(cfg.KeysDir)
	if err != nil {
		return nil, fmt.Errorf("opening keystore: %w", err)
	}
	s.keys = keys

	s.resolver = resolver.New(log, l, reg, store, keys)

	s.tail = ledgertail.NewHub(log)
	go ledgertail.Pump(l, s.tail, s.done)

	s.health = health.NewChecker(l, reg)

	if cfg.Manifest != nil {
		log.Infow("provisioning actors from seed manifest", "count", len(cfg.Manifest.Actors))
		for _, actor := range cfg.Manifest.Actors {
			if err := s.EnrollActor(actor.ID); err != nil {
				return nil, fmt.Errorf("seeding actor %s: %w", actor.ID, err)
			}
		}
	}

	return s, nil
}

// Close stops the ledger-tail pump goroutine.
func (s *Service) Close() {
	close(s.done)
}

// EmitRequest is the input to Emit.
type EmitRequest struct {
	ReportID    string
	LabID       string
	PatientRef  string
	IssuedAt    string
	ExamType    string
	ResultShort string
	Note        string
	Content     []byte
	// ExtraRecipients are additional actor ids the LAB pre-wraps the
	// content key for, beyond the patient (who is always a recipient).
	ExtraRecipients []string
}

func (req EmitRequest) aad() envelope.AAD {
	return envelope.AAD{
		ReportID:    req.ReportID,
		LabID:       req.LabID,
		PatientRef:  req.PatientRef,
		IssuedAt:    req.IssuedAt,
		ExamType:    req.ExamType,
		ResultShort: req.ResultShort,
		Note:        req.Note,
	}
}

func (s *Service) recipientKeys(patientRef string, extra []string) (map[string]*rsa.PublicKey, error) {
	recipients := map[string]*rsa.PublicKey{}
	for _, actorID := range append([]string{patientRef}, extra...) {
		pub, err := s.registry.PublicKey(actorID)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", actorID, err)
		}
		recipients[actorID] = pub
	}
	return recipients, nil
}

// Emit builds a hybrid envelope for req, scans its optional AAD fields with
// the guardrails, signs it with the LAB's key, and appends the resulting
// PUBLISH_REPORT event.
func (s *Service) Emit(req EmitRequest) *resolver.DenialError {
	aad := req.aad()
	if err := aad.Validate(); err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	gr := guardrails.Scan(aad)
	if gr.HasWarnings() {
		for _, w := range gr.Warnings {
			s.log.Warnw("guardrail warning", "reportId", req.ReportID, "field", w.Field, "type", w.DetectionType, "message", w.Message)
		}
		if s.strict {
			return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: fmt.Sprintf("%d guardrail warning(s), refusing to emit in strict mode", len(gr.Warnings))}
		}
	}

	recipients, err := s.recipientKeys(req.PatientRef, req.ExtraRecipients)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	env, err := envelope.EncryptForRecipients(req.Content, aad, recipients)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	labPriv, err := s.keys.PrivateKey(req.LabID)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: "lab has no provisioned key"}
	}
	env, err = env.SignLab(labPriv)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	return s.resolver.Emit(req.ReportID, req.LabID, req.PatientRef, env, req.IssuedAt)
}

// Update builds a new hybrid envelope for newReportID and advances
// oldReportID's lifecycle to it.
func (s *Service) Update(oldReportID, labID string, req EmitRequest) *resolver.DenialError {
	aad := req.aad()
	if err := aad.Validate(); err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	recipients, err := s.recipientKeys(req.PatientRef, req.ExtraRecipients)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	env, err := envelope.EncryptForRecipients(req.Content, aad, recipients)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}
	labPriv, err := s.keys.PrivateKey(labID)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: "lab has no provisioned key"}
	}
	env, err = env.SignLab(labPriv)
	if err != nil {
		return &resolver.DenialError{Kind: resolver.InputInvalid, Reason: err.Error()}
	}

	return s.resolver.Update(labID, oldReportID, req.ReportID, env)
}

// Revoke appends a REVOKE_REPORT event.
func (s *Service) Revoke(reportID, labID, reason string) *resolver.DenialError {
	return s.resolver.Revoke(labID, reportID, reason)
}

// Share delegates read access of reportID to targetID on the patient's
// behalf.
func (s *Service) Share(reportID, patientID, targetID string) *resolver.DenialError {
	return s.resolver.Share(patientID, reportID, targetID)
}

// Unshare soft-revokes targetID's access to reportID.
func (s *Service) Unshare(reportID, patientID, targetID string) *resolver.DenialError {
	return s.resolver.Unshare(patientID, reportID, targetID)
}

// Open returns the plaintext for (requesterID, reportID) along with the
// effective (current) report id.
func (s *Service) Open(reportID, requesterID string) ([]byte, string, *resolver.DenialError) {
	return s.resolver.Open(requesterID, reportID)
}

// StateOf returns reportID's lifecycle state.
func (s *Service) StateOf(reportID string) (ledger.State, error) {
	return s.resolver.StateOf(reportID)
}

// EnrollActor ensures actorID has a provisioned keypair and enrolls its
// public key into the certificate registry.
func (s *Service) EnrollActor(actorID string) error {
	if _, err := s.keys.EnsureKeys(actorID); err != nil {
		return err
	}
	pem, err := s.keys.PublicKeyPEM(actorID)
	if err != nil {
		return err
	}
	return s.registry.Enroll(actorID, pem)
}

// RevokeActor revokes actorID's certificate via the CA.
func (s *Service) RevokeActor(actorID string) error {
	return s.registry.Revoke(actorID)
}

// Health returns the current operational status snapshot.
func (s *Service) Health() (health.Status, error) {
	return s.health.Check()
}

// SubscribeLedger returns a channel that receives ledger events as they are
// appended, and an unsubscribe function.
func (s *Service) SubscribeLedger() (<-chan ledger.Event, func()) {
	return s.tail.Subscribe()
}
