// Package ledger implements the append-only, content-addressed event log
// that is the single source of truth for report lifecycle (PUBLISH /
// UPDATE / REVOKE / GRANT) and the pure folds that derive report state and
// grant history from it.
package ledger

// EventType discriminates the four ledger event variants.
type EventType string

const (
	EventPublish EventType = "PUBLISH_REPORT"
	EventRevoke  EventType = "REVOKE_REPORT"
	EventUpdate  EventType = "UPDATE_REPORT"
	EventGrant   EventType = "GRANT"
)

// Event is one append-only, immutable ledger entry. The fields actually
// populated depend on Type; each constructor below (NewPublish, NewRevoke,
// NewUpdate, NewGrant) sets exactly the fields its variant needs, an
// explicit tagged union in place of a dynamic field map, stored flat
// rather than as a nested payload.
type Event struct {
	Ts   int64     `json:"ts"`
	Type EventType `json:"type"`
	TxID string    `json:"txId,omitempty"`

	// PUBLISH_REPORT
	ReportID   string `json:"reportId,omitempty"`
	LabID      string `json:"labId,omitempty"`
	PatientRef string `json:"patientRef,omitempty"`
	Hash       string `json:"hash,omitempty"`
	SigLab     string `json:"sig_lab,omitempty"`
	IssuedAt   string `json:"issuedAt,omitempty"`

	// REVOKE_REPORT
	Reason string `json:"reason,omitempty"`

	// UPDATE_REPORT
	OldReportID string `json:"oldReportId,omitempty"`
	NewReportID string `json:"newReportId,omitempty"`

	// GRANT
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	EkTo   string `json:"ek_to,omitempty"`
	SigPat string `json:"sig_pat,omitempty"`
}

// NewPublish constructs a PUBLISH_REPORT event (Ts/TxID are filled by
// Ledger.Append).
func NewPublish(reportID, labID, patientRef, hash, sigLab, issuedAt string) Event {
	return Event{
		Type:       EventPublish,
		ReportID:   reportID,
		LabID:      labID,
		PatientRef: patientRef,
		Hash:       hash,
		SigLab:     sigLab,
		IssuedAt:   issuedAt,
	}
}

// NewRevoke constructs a REVOKE_REPORT event.
func NewRevoke(reportID, labID, reason string) Event {
	return Event{
		Type:     EventRevoke,
		ReportID: reportID,
		LabID:    labID,
		Reason:   reason,
	}
}

// NewUpdate constructs an UPDATE_REPORT event.
func NewUpdate(oldReportID, newReportID, labID string) Event {
	return Event{
		Type:        EventUpdate,
		OldReportID: oldReportID,
		NewReportID: newReportID,
		LabID:       labID,
	}
}

// NewGrant constructs a GRANT event.
func NewGrant(reportID, from, to, ekTo, sigPat string) Event {
	return Event{
		Type:     EventGrant,
		ReportID: reportID,
		From:     from,
		To:       to,
		EkTo:     ekTo,
		SigPat:   sigPat,
	}
}

// GrantSigningPayload is the exact structure the patient's GRANT signature
// (sig_pat) is computed over: canonical_json({reportId, from, to, ek_to}).
// It deliberately excludes ts/txId/sig_pat itself.
type GrantSigningPayload struct {
	ReportID string `json:"reportId"`
	From     string `json:"from"`
	To       string `json:"to"`
	EkTo     string `json:"ek_to"`
}

// SigningPayload extracts the GrantSigningPayload for a GRANT event.
func (e Event) SigningPayload() GrantSigningPayload {
	return GrantSigningPayload{
		ReportID: e.ReportID,
		From:     e.From,
		To:       e.To,
		EkTo:     e.EkTo,
	}
}
