// Package envelope implements the hybrid per-report envelope: symmetric
// content encryption (AES-256-GCM), per-recipient key wrapping
// (RSA-OAEP), and the Associated Authenticated Data (AAD) binding that
// ties ciphertext to a report's identity. It never signs — the detached
// lab signature over the envelope is added by the caller (internal/resolver
// or internal/service), since the codec has no notion of "who is the lab".
package envelope

import (
	"fmt"

	"github.com/apscustody/labcustody/internal/primitives"
)

// AAD is the Associated Authenticated Data bound into the AEAD
// computation. reportId, labId, patientRef, and issuedAt are required;
// examType, resultShort, and note are optional free-text fields. All
// values are strings: a declared required/optional schema in place of an
// untyped dynamic map.
type AAD struct {
	ReportID    string `json:"reportId"`
	LabID       string `json:"labId"`
	PatientRef  string `json:"patientRef"`
	IssuedAt    string `json:"issuedAt"`
	ExamType    string `json:"examType,omitempty"`
	ResultShort string `json:"resultShort,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Validate checks that every required field is a non-empty string.
func (a AAD) Validate() error {
	if a.ReportID == "" {
		return fmt.Errorf("aad: reportId is required")
	}
	if a.LabID == "" {
		return fmt.Errorf("aad: labId is required")
	}
	if a.PatientRef == "" {
		return fmt.Errorf("aad: patientRef is required")
	}
	if a.IssuedAt == "" {
		return fmt.Errorf("aad: issuedAt is required")
	}
	return nil
}

// OptionalFields returns the optional free-text fields present on a,
// keyed by field name — used by internal/guardrails to scan exactly the
// fields that are not already known-required structured identifiers.
func (a AAD) OptionalFields() map[string]string {
	out := map[string]string{}
	if a.ExamType != "" {
		out["examType"] = a.ExamType
	}
	if a.ResultShort != "" {
		out["resultShort"] = a.ResultShort
	}
	if a.Note != "" {
		out["note"] = a.Note
	}
	return out
}

// CanonicalJSON serialises the AAD the way it must be serialised for both
// AEAD binding and signature computation: canonical JSON (sorted keys, no
// insignificant whitespace).
func (a AAD) CanonicalJSON() ([]byte, error) {
	return primitives.CanonicalJSON(a)
}
