// Package resolver implements the access-resolution pipeline: the
// orchestration kernel that combines ledger state, envelope AAD, lab
// signatures, CA/CRL status, patient soft-revocations, and grant chains
// into a single decision — either the recovered content (or key), or a
// typed denial.
package resolver

import (
	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/envelope"
	"github.com/apscustody/labcustody/internal/keystore"
	"github.com/apscustody/labcustody/internal/ledger"
	"github.com/apscustody/labcustody/internal/primitives"
	"github.com/apscustody/labcustody/internal/registry"
)

// Resolver composes the ledger, the certificate registry, the envelope /
// soft-revocation store, and per-actor keys into the decision function
// described above.
type Resolver struct {
	log *zap.SugaredLogger

	ledger *ledger.Ledger
	reg    *registry.Registry
	store  *Store
	keys   *keystore.Store
}

// New wires a Resolver from its four collaborators.
func New(log *zap.SugaredLogger, l *ledger.Ledger, reg *registry.Registry, store *Store, keys *keystore.Store) *Resolver {
	return &Resolver{log: log, ledger: l, reg: reg, store: store, keys: keys}
}

// resolved bundles the outcome of steps 1–8 of the pipeline: the envelope,
// its lab-signature-backed public key, and the unwrap source to use in
// step 9. Both Open and ResolveKey share this up through unwrap.
type resolved struct {
	effectiveReportID string
	env               envelope.Envelope
	wrap              string
}

// resolveWrap runs steps 1–8 of the pipeline for (requesterID, reportIDReq)
// and returns the effective report id, the envelope, and the Base64
// RSA-OAEP wrap the requester should unwrap.
func (r *Resolver) resolveWrap(requesterID, reportIDReq string) (resolved, *DenialError) {
	// Step 1: resolve current version.
	st, err := r.ledger.StateOf(reportIDReq)
	if err != nil {
		return resolved{}, denyWrap(NotFound, "reading ledger state", err)
	}
	if st.Status == ledger.StatusRevoked || st.Status == ledger.StatusUnknown {
		return resolved{}, deny(ReportState, string(st.Status))
	}
	rid := st.CurrentReportID

	// Step 2: soft-revocation check.
	if r.store.IsSoftRevoked(rid, requesterID) {
		return resolved{}, deny(SoftRevoked, "")
	}

	// Step 3: envelope retrieval.
	env, ok := r.store.Envelope(rid)
	if !ok {
		return resolved{}, deny(NotFound, "no envelope stored for "+rid)
	}

	// Step 4: AAD integrity.
	labID := env.AAD.LabID
	patientRef := env.AAD.PatientRef
	if labID == "" || patientRef == "" {
		return resolved{}, deny(InvalidEnvelope, "missing labId or patientRef")
	}

	// Step 5: CA/CRL check on LAB.
	if r.reg.InCRL(labID) {
		return resolved{}, deny(LabRevokedByCA, labID)
	}

	// Step 6: ledger binding.
	pubEv, err := r.ledger.GetPublish(rid)
	if err != nil {
		return resolved{}, denyWrap(NotFound, "reading ledger", err)
	}
	if pubEv == nil {
		return resolved{}, deny(LedgerMissing, rid)
	}
	ctHash, err := env.CiphertextHash()
	if err != nil {
		return resolved{}, deny(InvalidEnvelope, "undecodable ciphertext")
	}
	switch {
	case pubEv.Hash != ctHash:
		return resolved{}, deny(LedgerMismatch, "hash")
	case pubEv.LabID != labID:
		return resolved{}, deny(LedgerMismatch, "labId")
	case pubEv.PatientRef != patientRef:
		return resolved{}, deny(LedgerMismatch, "patientRef")
	}

	// Step 7: lab signature verification.
	labPub, err := r.reg.PublicKey(labID)
	if err != nil {
		return resolved{}, denyWrap(InvalidLabSignature, "lab not enrolled", err)
	}
	if !env.VerifyLab(labPub) {
		return resolved{}, deny(InvalidLabSignature, "")
	}

	// Step 8: key resolution — direct wrap, or delegated via a grant.
	if wrap, ok := env.WrappedKeyFor(requesterID); ok {
		return resolved{effectiveReportID: rid, env: env, wrap: wrap}, nil
	}

	grants, err := r.ledger.LookupGrants(rid, requesterID)
	if err != nil {
		return resolved{}, denyWrap(NotFound, "reading grants", err)
	}
	if len(grants) == 0 {
		return resolved{}, deny(NoGrant, "")
	}
	grant := grants[len(grants)-1]

	fromPub, err := r.reg.PublicKey(grant.From)
	if err != nil {
		return resolved{}, denyWrap(InvalidGrantSignature, "grantor not enrolled", err)
	}
	payload, err := primitives.CanonicalJSON(grant.SigningPayload())
	if err != nil {
		return resolved{}, denyWrap(InvalidGrantSignature, "encoding grant payload", err)
	}
	if !primitives.Verify(fromPub, payload, grant.SigPat) {
		return resolved{}, deny(InvalidGrantSignature, "")
	}

	return resolved{effectiveReportID: rid, env: env, wrap: grant.EkTo}, nil
}

// unwrapFor unwraps res.wrap using requesterID's private key. Shared by
// ResolveKey and Open so the pipeline (steps 1–8) runs exactly once per
// call regardless of whether the caller wants the key or the plaintext.
func (r *Resolver) unwrapFor(requesterID string, res resolved) ([]byte, *DenialError) {
	requesterPriv, err := r.keys.PrivateKey(requesterID)
	if err != nil {
		return nil, denyWrap(UnwrapFailed, "", err)
	}
	key, err := envelope.UnwrapWith(requesterPriv, res.wrap)
	if err != nil {
		return nil, deny(UnwrapFailed, "")
	}
	return key, nil
}

// ResolveKey runs the full pipeline and returns the content key for
// (requesterID, reportIDReq) without decrypting — used by selective
// disclosure-style verifiers that only need the key. The caller must
// zeroize the returned key.
func (r *Resolver) ResolveKey(requesterID, reportIDReq string) ([]byte, string, *DenialError) {
	res, denyErr := r.resolveWrap(requesterID, reportIDReq)
	if denyErr != nil {
		return nil, "", denyErr
	}
	key, denyErr := r.unwrapFor(requesterID, res)
	if denyErr != nil {
		return nil, "", denyErr
	}
	return key, res.effectiveReportID, nil
}

// Open runs the full pipeline and returns the plaintext for
// (requesterID, reportIDReq).
func (r *Resolver) Open(requesterID, reportIDReq string) ([]byte, string, *DenialError) {
	res, denyErr := r.resolveWrap(requesterID, reportIDReq)
	if denyErr != nil {
		return nil, "", denyErr
	}
	key, denyErr := r.unwrapFor(requesterID, res)
	if denyErr != nil {
		return nil, "", denyErr
	}
	defer primitives.Zero(key)

	pt, err := envelope.OpenWithKey(res.env, key)
	if err != nil {
		return nil, "", deny(AeadFailure, "")
	}
	return pt, res.effectiveReportID, nil
}

// Share appends a patient-signed GRANT delegating read access of reportIDReq
// to targetID, re-wrapping the content key under targetID's public key.
// If targetID was previously soft-revoked from the report, the revocation
// is cleared: re-sharing restores access.
func (r *Resolver) Share(patientID, reportIDReq, targetID string) *DenialError {
	st, err := r.ledger.StateOf(reportIDReq)
	if err != nil {
		return denyWrap(NotFound, "reading ledger state", err)
	}
	if st.Status == ledger.StatusRevoked || st.Status == ledger.StatusUnknown {
		return deny(ReportState, string(st.Status))
	}
	rid := st.CurrentReportID

	key, _, denyErr := r.ResolveKey(patientID, rid)
	if denyErr != nil {
		return denyErr
	}
	defer primitives.Zero(key)

	targetPub, err := r.reg.PublicKey(targetID)
	if err != nil {
		return denyWrap(InputInvalid, "target not enrolled", err)
	}
	ekTo, err := primitives.Wrap(targetPub, key)
	if err != nil {
		return denyWrap(InputInvalid, "wrapping key for target", err)
	}

	patientPriv, err := r.keys.PrivateKey(patientID)
	if err != nil {
		return denyWrap(NotOwner, "patient has no provisioned key", err)
	}
	grantEv := ledger.NewGrant(rid, patientID, targetID, ekTo, "")
	payload, err := primitives.CanonicalJSON(grantEv.SigningPayload())
	if err != nil {
		return denyWrap(InputInvalid, "encoding grant payload", err)
	}
	sig, err := primitives.Sign(patientPriv, payload)
	if err != nil {
		return denyWrap(InputInvalid, "signing grant", err)
	}
	grantEv.SigPat = sig

	if _, err := r.ledger.Append(grantEv); err != nil {
		return denyWrap(NotFound, "appending grant", err)
	}
	if err := r.store.ClearSoftRevoke(rid, targetID); err != nil {
		return denyWrap(NotFound, "clearing soft revocation", err)
	}

	r.log.Infow("share granted", "reportId", rid, "from", patientID, "to", targetID)
	return nil
}

// Unshare adds targetID to reportIDReq's soft-revocation set. It is purely a
// policy overlay: no ledger event is appended and no cryptographic material
// moves, since the content key is not rotated.
func (r *Resolver) Unshare(patientID, reportIDReq, targetID string) *DenialError {
	st, err := r.ledger.StateOf(reportIDReq)
	if err != nil {
		return denyWrap(NotFound, "reading ledger state", err)
	}
	rid := st.CurrentReportID

	env, ok := r.store.Envelope(rid)
	if !ok {
		return deny(NotFound, "no envelope stored for "+rid)
	}
	if env.AAD.PatientRef != patientID {
		return deny(NotOwner, "")
	}

	if err := r.store.SoftRevoke(rid, targetID); err != nil {
		return denyWrap(NotFound, "recording soft revocation", err)
	}
	r.log.Infow("share soft-revoked", "reportId", rid, "patient", patientID, "target", targetID)
	return nil
}

// Revoke appends a REVOKE_REPORT event for reportIDReq, terminating its
// lifecycle. After this, the pipeline denies every subsequent read at step 1.
func (r *Resolver) Revoke(labID, reportIDReq, reason string) *DenialError {
	st, err := r.ledger.StateOf(reportIDReq)
	if err != nil {
		return denyWrap(NotFound, "reading ledger state", err)
	}
	if st.CurrentReportID != reportIDReq {
		return deny(ReportState, "not current")
	}
	if st.Status == ledger.StatusRevoked {
		return deny(ReportState, string(st.Status))
	}

	if _, err := r.ledger.Append(ledger.NewRevoke(reportIDReq, labID, reason)); err != nil {
		return denyWrap(NotFound, "appending revoke", err)
	}
	r.log.Infow("report revoked", "reportId", reportIDReq, "lab", labID, "reason", reason)
	return nil
}

// Update stores newEnv under newReportID and appends an UPDATE_REPORT event
// advancing oldReportID's chain. Soft revocations are keyed on the new id
// and do not carry over from the old one, and no grant is automatically
// re-issued — a consumer with access to oldReportID must be re-shared on
// newReportID (see the open-question decisions recorded in DESIGN.md).
func (r *Resolver) Update(labID, oldReportID, newReportID string, newEnv envelope.Envelope) *DenialError {
	st, err := r.ledger.StateOf(oldReportID)
	if err != nil {
		return denyWrap(NotFound, "reading ledger state", err)
	}
	if st.CurrentReportID != oldReportID {
		return deny(ReportState, "not current")
	}
	if st.Status == ledger.StatusRevoked {
		return deny(ReportState, string(st.Status))
	}
	if err := newEnv.Validate(); err != nil {
		return denyWrap(InvalidEnvelope, "", err)
	}

	if err := r.store.PutEnvelope(newReportID, newEnv); err != nil {
		return denyWrap(NotFound, "storing new envelope", err)
	}
	if _, err := r.ledger.Append(ledger.NewUpdate(oldReportID, newReportID, labID)); err != nil {
		return denyWrap(NotFound, "appending update", err)
	}
	r.log.Infow("report updated", "oldReportId", oldReportID, "newReportId", newReportID, "lab", labID)
	return nil
}

// Emit stores env under reportID and appends the PUBLISH_REPORT event that
// anchors it into the ledger. env must already carry sig_lab.
func (r *Resolver) Emit(reportID, labID, patientRef string, env envelope.Envelope, issuedAt string) *DenialError {
	if err := env.Validate(); err != nil {
		return denyWrap(InvalidEnvelope, "", err)
	}
	if env.SigLab == "" {
		return deny(InvalidEnvelope, "missing sig_lab")
	}
	hash, err := env.CiphertextHash()
	if err != nil {
		return denyWrap(InvalidEnvelope, "undecodable ciphertext", err)
	}

	if err := r.store.PutEnvelope(reportID, env); err != nil {
		return denyWrap(NotFound, "storing envelope", err)
	}
	if _, err := r.ledger.Append(ledger.NewPublish(reportID, labID, patientRef, hash, env.SigLab, issuedAt)); err != nil {
		return denyWrap(NotFound, "appending publish", err)
	}
	r.log.Infow("report emitted", "reportId", reportID, "lab", labID)
	return nil
}

// StateOf exposes the ledger's lifecycle fold directly; it carries no
// denial semantics of its own since querying state is never itself an
// access decision.
func (r *Resolver) StateOf(reportID string) (ledger.State, error) {
	return r.ledger.StateOf(reportID)
}
